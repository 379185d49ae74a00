package worker

// polyfillSource is evaluated in every isolate before the bundled wrapper
// module, providing the minimal Web API surface SPEC_FULL.md's worker
// factory expansion calls for: console, URL, TextEncoder/TextDecoder,
// crypto.randomUUID/getRandomValues, a Response class, and setTimeout.
// V8 on its own ships none of these — they are DOM/Node/Worker-runtime
// APIs, not ECMAScript — so the host supplies them the same way a
// browser or Deno would, backed by the Go functions installed in
// globals.go.
const polyfillSource = `
(function() {
	globalThis.console = {
		log: (...args) => __hostLog("info", args.map(String).join(" ")),
		info: (...args) => __hostLog("info", args.map(String).join(" ")),
		warn: (...args) => __hostLog("warn", args.map(String).join(" ")),
		error: (...args) => __hostLog("error", args.map(String).join(" ")),
	};

	class Headers {
		constructor(init) {
			this._map = new Map();
			if (init) {
				for (const [k, v] of (init instanceof Headers ? init._map : Object.entries(init))) {
					this._map.set(String(k).toLowerCase(), String(v));
				}
			}
		}
		get(name) { return this._map.has(name.toLowerCase()) ? this._map.get(name.toLowerCase()) : null; }
		set(name, value) { this._map.set(name.toLowerCase(), String(value)); }
		has(name) { return this._map.has(name.toLowerCase()); }
		forEach(fn) { this._map.forEach((v, k) => fn(v, k)); }
		entries() { return this._map.entries(); }
	}
	globalThis.Headers = Headers;

	class Response {
		constructor(body, init) {
			init = init || {};
			this.body = body === undefined || body === null ? "" : String(body);
			this.status = init.status || 200;
			this.statusText = init.statusText || "";
			this.headers = init.headers instanceof Headers ? init.headers : new Headers(init.headers);
		}
		text() { return Promise.resolve(this.body); }
		json() { return Promise.resolve(JSON.parse(this.body)); }
	}
	globalThis.Response = Response;

	class URL {
		constructor(input, base) {
			const parsed = __hostParseURL(String(input), base ? String(base) : "");
			Object.assign(this, JSON.parse(parsed));
		}
		toString() { return this.href; }
	}
	globalThis.URL = URL;

	globalThis.crypto = {
		randomUUID: () => __hostRandomUUID(),
		getRandomValues: (typedArray) => {
			const bytes = __hostRandomBytes(typedArray.length);
			for (let i = 0; i < typedArray.length; i++) typedArray[i] = bytes[i];
			return typedArray;
		},
	};

	globalThis.TextEncoder = class TextEncoder {
		encode(str) {
			const bytes = __hostUTF8Encode(String(str));
			return Uint8Array.from(bytes);
		}
	};
	globalThis.TextDecoder = class TextDecoder {
		decode(bytes) { return __hostUTF8Decode(JSON.stringify(Array.from(bytes))); }
	};

	let __timerSeq = 0;
	const __timers = new Map();
	globalThis.setTimeout = (fn, delayMs, ...args) => {
		const id = ++__timerSeq;
		__timers.set(id, fn);
		__hostScheduleTimer(id, delayMs || 0);
		return id;
	};
	globalThis.clearTimeout = (id) => { __timers.delete(id); };
	globalThis.__runTimer = (id) => {
		const fn = __timers.get(id);
		__timers.delete(id);
		if (fn) fn();
	};

	const __denied = (name) => () => { throw new Error(name + " is not available to isolated workers"); };
	globalThis.WebSocket = __denied("WebSocket");
	globalThis.BroadcastChannel = __denied("BroadcastChannel");
	globalThis.caches = undefined;
	globalThis.indexedDB = undefined;
	globalThis.navigator = { gpu: undefined };

	globalThis.engineFsRead = (path) => __hostFsRead(path);

	globalThis.fetch = (input, init) => {
		init = init || {};
		const url = typeof input === "string" ? input : input.url;
		const method = init.method || "GET";
		const headers = init.headers instanceof Headers ? init.headers : new Headers(init.headers);
		const headerPairs = [];
		headers.forEach((v, k) => headerPairs.push([k, v]));
		return __hostFetch(url, method, headerPairs, init.body || "").then((raw) => {
			const result = JSON.parse(raw);
			return new Response(result.body, { status: result.status, headers: result.headers });
		});
	};
})();
`
