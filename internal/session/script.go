package session

// highlightScript toggles an outline on the element carrying the requested
// data-dom-id. The style element is installed once per page and shared by
// every highlight call.
const highlightScript = `(args) => {
  const styleId = 'testscribe-highlight-style';
  if (!document.getElementById(styleId)) {
    const style = document.createElement('style');
    style.id = styleId;
    style.textContent =
      '.testscribe-highlight {' +
      '  outline: 3px solid #ff7a18 !important;' +
      '  outline-offset: 2px !important;' +
      '  box-shadow: 0 0 0 6px rgba(255, 122, 24, 0.25) !important;' +
      '}';
    document.head.appendChild(style);
  }

  const el = document.querySelector('[data-dom-id="' + args.domId + '"]');
  if (!el) {
    return { found: false };
  }
  if (args.action === 'show') {
    el.classList.add('testscribe-highlight');
    el.scrollIntoView({ block: 'center', behavior: 'smooth' });
  } else {
    el.classList.remove('testscribe-highlight');
  }
  return { found: true };
}`

// clearHighlightsScript removes every live highlight, used before a DOM sync
// so stale outlines never end up in a persisted snapshot.
const clearHighlightsScript = `() => {
  document.querySelectorAll('.testscribe-highlight').forEach((el) => {
    el.classList.remove('testscribe-highlight');
  });
}`
