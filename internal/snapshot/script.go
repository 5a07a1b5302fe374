package snapshot

// domWalkerScript runs inside the page. It walks the DOM depth-first from
// body, stamps every visited element with data-dom-id and data-dom-path so
// later tooling can address the same node, and returns the abbreviated tree,
// the flat control list and an aria summary in one round trip. Elements that
// already carry a data-dom-id keep it, so ids handed out by an earlier walk
// stay valid when the page mutates and is walked again; the counter skips
// past any id it sees to keep fresh assignments unique.
const domWalkerScript = `(args) => {
	const maxDepth = args.maxDepth;
	const maxNodes = args.maxNodes;
	const skip = new Set(['script', 'style', 'noscript', 'iframe', 'embed', 'object', 'svg', 'meta', 'link', 'head']);
	const attrNames = ['id', 'class', 'role', 'aria-label', 'name', 'type', 'placeholder', 'data-test', 'href'];

	let counter = 0;
	let nodeCount = 0;
	let maxSeen = 0;

	const assignDomId = (el) => {
		const existing = el.getAttribute('data-dom-id');
		if (existing) {
			const m = /^dom-(\d+)$/.exec(existing);
			if (m) counter = Math.max(counter, Number(m[1]) + 1);
			return existing;
		}
		return 'dom-' + counter++;
	};

	const segment = (el) => {
		const tag = el.tagName.toLowerCase();
		if (el.id) return tag + '#' + el.id;
		const cls = typeof el.className === 'string' ? el.className.trim().split(/\s+/)[0] : '';
		return cls ? tag + '.' + cls : tag;
	};

	const pathOf = (el) => {
		const parts = [];
		let cur = el;
		while (cur && cur.tagName && cur.tagName.toLowerCase() !== 'html') {
			parts.unshift(segment(cur));
			if (cur.id) break;
			cur = cur.parentElement;
		}
		return parts.join(' > ');
	};

	const pickAttrs = (el) => {
		const attrs = {};
		for (const name of attrNames) {
			const v = el.getAttribute(name);
			if (v) attrs[name] = v;
		}
		return attrs;
	};

	const ownText = (el) => {
		let text = '';
		for (const child of el.childNodes) {
			if (child.nodeType === Node.TEXT_NODE) text += child.textContent;
		}
		return text.trim().slice(0, 120);
	};

	const walk = (el, depth) => {
		if (depth > maxDepth || nodeCount >= maxNodes) return null;
		const tag = el.tagName.toLowerCase();
		if (skip.has(tag)) return null;

		const domId = assignDomId(el);
		nodeCount++;
		if (depth > maxSeen) maxSeen = depth;

		const path = pathOf(el);
		el.setAttribute('data-dom-id', domId);
		el.setAttribute('data-dom-path', path);

		const node = { dom_id: domId, tag: tag, depth: depth, path: path };
		const attrs = pickAttrs(el);
		if (Object.keys(attrs).length) node.attrs = attrs;
		const text = ownText(el);
		if (text) node.text = text;

		const children = [];
		for (const child of el.children) {
			const sub = walk(child, depth + 1);
			if (sub) children.push(sub);
		}
		if (children.length) node.children = children;
		return node;
	};

	const tree = document.body ? walk(document.body, 0) : null;

	const controls = [];
	for (const el of document.querySelectorAll('input, textarea, select, button')) {
		controls.push({
			dom_id: el.getAttribute('data-dom-id') || '',
			tag: el.tagName.toLowerCase(),
			attrs: pickAttrs(el),
			path: el.getAttribute('data-dom-path') || pathOf(el),
			text: (el.textContent || '').trim().slice(0, 120),
		});
	}

	const a11y = [];
	for (const el of document.querySelectorAll('[role], [aria-label]')) {
		a11y.push({
			tag: el.tagName.toLowerCase(),
			role: el.getAttribute('role') || '',
			label: el.getAttribute('aria-label') || '',
			path: el.getAttribute('data-dom-path') || '',
		});
	}

	return {
		dom_tree: tree,
		controls: controls,
		a11y_tree: a11y,
		stats: { node_count: nodeCount, max_depth: maxSeen },
	};
}`
