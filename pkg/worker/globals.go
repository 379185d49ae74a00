package worker

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	v8 "github.com/tommie/v8go"

	"github.com/nimbusedge/edgehost/pkg/log"
	"github.com/nimbusedge/edgehost/pkg/metrics"
	"github.com/nimbusedge/edgehost/pkg/policy"
	"github.com/nimbusedge/edgehost/pkg/types"
)

// promiseSpinDeadline bounds how long awaitResult will spin the
// microtask queue for a single handler invocation before giving up.
const promiseSpinDeadline = 30 * time.Second

// installGlobals builds the ObjectTemplate carrying every Go-bound
// function the polyfill and the wrapper call into. The capability-sensitive
// ones (__hostFetch, __hostFsRead, __hostListen) are checked against pol;
// the rest (logging, randomness, UTF-8, URL parsing, timers) are not.
func installGlobals(iso *v8.Isolate, pol policy.Policy, slug types.Slug, r *reactor) (*v8.ObjectTemplate, error) {
	global := v8.NewObjectTemplate(iso)

	set := func(name string, fn v8.FunctionCallback) error {
		return global.Set(name, v8.NewFunctionTemplate(iso, fn), v8.ReadOnly)
	}

	if err := set("__hostLog", hostLog(slug)); err != nil {
		return nil, err
	}
	if err := set("__hostRandomUUID", hostRandomUUID()); err != nil {
		return nil, err
	}
	if err := set("__hostRandomBytes", hostRandomBytes()); err != nil {
		return nil, err
	}
	if err := set("__hostUTF8Encode", hostUTF8Encode()); err != nil {
		return nil, err
	}
	if err := set("__hostUTF8Decode", hostUTF8Decode()); err != nil {
		return nil, err
	}
	if err := set("__hostParseURL", hostParseURL()); err != nil {
		return nil, err
	}
	if err := set("__hostScheduleTimer", hostScheduleTimer(r)); err != nil {
		return nil, err
	}
	if err := set("__hostFetch", hostFetch(pol, r)); err != nil {
		return nil, err
	}
	if err := set("__hostFsRead", hostFsRead(pol)); err != nil {
		return nil, err
	}
	if err := set("__hostListen", hostListen(pol, slug, r)); err != nil {
		return nil, err
	}

	return global, nil
}

func throwf(iso *v8.Isolate, format string, args ...interface{}) *v8.Value {
	val, _ := v8.NewValue(iso, fmt.Sprintf(format, args...))
	return iso.ThrowException(val)
}

func hostLog(slug types.Slug) v8.FunctionCallback {
	logger := log.WithSlug(string(slug))
	return func(info *v8.FunctionCallbackInfo) *v8.Value {
		args := info.Args()
		if len(args) < 2 {
			return v8.Undefined(info.Context().Isolate())
		}
		level, msg := args[0].String(), args[1].String()
		switch level {
		case "warn":
			logger.Warn().Msg(msg)
		case "error":
			logger.Error().Msg(msg)
		default:
			logger.Info().Msg(msg)
		}
		return v8.Undefined(info.Context().Isolate())
	}
}

func hostRandomUUID() v8.FunctionCallback {
	return func(info *v8.FunctionCallbackInfo) *v8.Value {
		val, _ := v8.NewValue(info.Context().Isolate(), uuid.NewString())
		return val
	}
}

func hostRandomBytes() v8.FunctionCallback {
	return func(info *v8.FunctionCallbackInfo) *v8.Value {
		iso := info.Context().Isolate()
		args := info.Args()
		if len(args) < 1 {
			return throwf(iso, "getRandomValues: missing length")
		}
		n := int(args[0].Int32())
		buf := make([]byte, n)
		if _, err := rand.Read(buf); err != nil {
			return throwf(iso, "getRandomValues: %v", err)
		}
		nums := make([]int, n)
		for i, b := range buf {
			nums[i] = int(b)
		}
		encoded, _ := json.Marshal(nums)
		ctx := info.Context()
		result, err := v8.JSONParse(ctx, string(encoded))
		if err != nil {
			return throwf(iso, "getRandomValues: %v", err)
		}
		return result
	}
}

func hostUTF8Encode() v8.FunctionCallback {
	return func(info *v8.FunctionCallbackInfo) *v8.Value {
		iso := info.Context().Isolate()
		args := info.Args()
		if len(args) < 1 {
			return throwf(iso, "TextEncoder.encode: missing argument")
		}
		bytes := []byte(args[0].String())
		nums := make([]int, len(bytes))
		for i, b := range bytes {
			nums[i] = int(b)
		}
		encoded, _ := json.Marshal(nums)
		result, err := v8.JSONParse(info.Context(), string(encoded))
		if err != nil {
			return throwf(iso, "TextEncoder.encode: %v", err)
		}
		return result
	}
}

func hostUTF8Decode() v8.FunctionCallback {
	return func(info *v8.FunctionCallbackInfo) *v8.Value {
		iso := info.Context().Isolate()
		args := info.Args()
		if len(args) < 1 {
			return throwf(iso, "TextDecoder.decode: missing argument")
		}
		var nums []int
		if err := json.Unmarshal([]byte(args[0].String()), &nums); err != nil {
			return throwf(iso, "TextDecoder.decode: %v", err)
		}
		buf := make([]byte, len(nums))
		for i, n := range nums {
			buf[i] = byte(n)
		}
		if !utf8.Valid(buf) {
			return throwf(iso, "TextDecoder.decode: invalid utf-8")
		}
		val, _ := v8.NewValue(iso, string(buf))
		return val
	}
}

// hostParseURL implements URL() using net/url rather than hand-rolling a
// URL grammar in JS; it returns a JSON string the JS URL class unpacks
// with Object.assign.
func hostParseURL() v8.FunctionCallback {
	return func(info *v8.FunctionCallbackInfo) *v8.Value {
		iso := info.Context().Isolate()
		args := info.Args()
		if len(args) < 1 {
			return throwf(iso, "URL: missing input")
		}
		raw := args[0].String()
		parsed, err := parseURL(raw)
		if err != nil {
			return throwf(iso, "URL: %v", err)
		}
		encoded, _ := json.Marshal(parsed)
		val, _ := v8.NewValue(iso, string(encoded))
		return val
	}
}

// hostScheduleTimer implements setTimeout's host half: a real
// time.AfterFunc posts the timer-firing task back onto the isolate's
// reactor, where it runs globalThis.__runTimer(id) inline with whatever
// else the reactor is doing (spec.md's Non-goals exclude CPU/memory
// quotas, so no bound is placed on timer callback work here beyond the
// delay itself).
func hostScheduleTimer(r *reactor) v8.FunctionCallback {
	return func(info *v8.FunctionCallbackInfo) *v8.Value {
		iso := info.Context().Isolate()
		args := info.Args()
		if len(args) < 2 {
			return throwf(iso, "setTimeout: missing arguments")
		}
		id := args[0].Int32()
		delayMs := args[1].Int32()
		if delayMs < 0 {
			delayMs = 0
		}
		time.AfterFunc(time.Duration(delayMs)*time.Millisecond, func() {
			r.tasks <- func() {
				runTimer(r.ctx, id)
			}
		})
		return v8.Undefined(iso)
	}
}

func runTimer(ctx *v8.Context, id int32) {
	script := fmt.Sprintf("globalThis.__runTimer(%d)", id)
	if _, err := ctx.RunScript(script, "timer.js"); err != nil {
		log.Logger.Error().Err(err).Int32("timer_id", id).Msg("timer callback failed")
	}
}

// hostFetch implements outbound fetch: it is policy-checked exactly like
// any other OpConnect (spec.md §4.2's table), then performed with a real
// net/http.Client, and the result marshaled back to JSON for the JS
// fetch() polyfill to unwrap. The promise is resolved on the isolate's
// reactor goroutine.
func hostFetch(pol policy.Policy, r *reactor) v8.FunctionCallback {
	client := &http.Client{Timeout: 30 * time.Second}
	return func(info *v8.FunctionCallbackInfo) *v8.Value {
		iso := info.Context().Isolate()
		args := info.Args()
		if len(args) < 4 {
			return throwf(iso, "fetch: missing arguments")
		}
		rawURL := args[0].String()
		method := args[1].String()
		body := args[3].String()

		parsed, err := parseURL(rawURL)
		if err != nil {
			return throwf(iso, "fetch: %v", err)
		}
		host, port := policy.ParseHostPort(parsed.Host)
		if err := pol.CheckNet(policy.OpConnect, host, port); err != nil {
			metrics.PermissionDeniedTotal.WithLabelValues(string(policy.OpConnect)).Inc()
			return throwf(iso, "%v", err)
		}

		resolver, err := v8.NewPromiseResolver(info.Context())
		if err != nil {
			return throwf(iso, "fetch: %v", err)
		}

		req, err := http.NewRequest(method, rawURL, nil)
		if err != nil {
			return throwf(iso, "fetch: %v", err)
		}
		if body != "" {
			req.Body = io.NopCloser(strings.NewReader(body))
		}

		go func() {
			resp, err := client.Do(req)
			var payload map[string]interface{}
			if err != nil {
				payload = map[string]interface{}{"status": 0, "headers": map[string]string{}, "body": err.Error()}
			} else {
				defer resp.Body.Close()
				respBody, _ := io.ReadAll(resp.Body)
				headers := map[string]string{}
				for k := range resp.Header {
					headers[k] = resp.Header.Get(k)
				}
				payload = map[string]interface{}{"status": resp.StatusCode, "headers": headers, "body": string(respBody)}
			}
			encoded, _ := json.Marshal(payload)
			r.tasks <- func() {
				val, _ := v8.NewValue(iso, string(encoded))
				resolver.Resolve(val)
			}
		}()

		return resolver.GetPromise().Value
	}
}

// hostFsRead always denies, per spec.md §4.2's table: "the core grants no
// filesystem access to tenant code, read or write." It exists as a named
// op (rather than simply leaving fs ops unimplemented) so user code gets
// a PermissionDenied it can catch instead of a generic ReferenceError.
func hostFsRead(pol policy.Policy) v8.FunctionCallback {
	return func(info *v8.FunctionCallbackInfo) *v8.Value {
		iso := info.Context().Isolate()
		path := ""
		if args := info.Args(); len(args) > 0 {
			path = args[0].String()
		}
		metrics.PermissionDeniedTotal.WithLabelValues(string(policy.OpFsRead)).Inc()
		return throwf(iso, "%v", pol.CheckFs(policy.OpFsRead, path))
	}
}

// hostListen implements the wrapper's one permitted listen: the port
// must equal the isolate's assigned port (spec.md §4.2), after which a
// real net/http.Server bridges inbound connections into synchronous
// calls back into the isolate via the reactor (spec.md §4.6: "starts an
// HTTP server ... whose handler is (req) => defaultExport.fetch(req,
// env)").
func hostListen(pol policy.Policy, slug types.Slug, r *reactor) v8.FunctionCallback {
	return func(info *v8.FunctionCallbackInfo) *v8.Value {
		iso := info.Context().Isolate()
		args := info.Args()
		if len(args) < 2 {
			return throwf(iso, "__hostListen: missing arguments")
		}
		port := uint16(args[0].Int32())
		handler, err := args[1].AsFunction()
		if err != nil {
			return throwf(iso, "__hostListen: second argument is not a function")
		}
		if err := pol.CheckNet(policy.OpListen, "0.0.0.0", port); err != nil {
			metrics.PermissionDeniedTotal.WithLabelValues(string(policy.OpListen)).Inc()
			return throwf(iso, "%v", err)
		}

		addr := fmt.Sprintf("0.0.0.0:%d", port)
		srv := &http.Server{
			Addr:    addr,
			Handler: bridgeHandler(r, handler),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger := log.WithSlug(string(slug))
				logger.Error().Err(err).Msg("wrapper listener exited")
			}
		}()

		return v8.Undefined(iso)
	}
}

// bridgeHandler adapts a real inbound http.Request into the JSON payload
// the synthesized wrapper's JS handler expects, and the JSON payload it
// returns back into a real http.ResponseWriter write.
func bridgeHandler(r *reactor, handler *v8.Function) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		bodyBytes, _ := io.ReadAll(req.Body)
		headers := map[string]string{}
		for k := range req.Header {
			headers[k] = req.Header.Get(k)
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"method":  req.Method,
			"url":     req.URL.String(),
			"headers": headers,
			"body":    string(bodyBytes),
		})

		var respPayload struct {
			Status  int               `json:"status"`
			Headers map[string]string `json:"headers"`
			Body    string            `json:"body"`
		}
		var callErr error

		r.run(func() {
			argVal, err := v8.NewValue(r.iso, string(payload))
			if err != nil {
				callErr = err
				return
			}
			result, err := handler.Call(r.ctx.Global().Value, argVal)
			if err != nil {
				callErr = err
				return
			}
			settled, err := awaitResult(r, result, promiseSpinDeadline)
			if err != nil {
				callErr = err
				return
			}
			callErr = json.Unmarshal([]byte(settled.String()), &respPayload)
		})

		if callErr != nil {
			http.Error(w, callErr.Error(), http.StatusInternalServerError)
			return
		}
		for k, v := range respPayload.Headers {
			w.Header().Set(k, v)
		}
		if respPayload.Status == 0 {
			respPayload.Status = http.StatusOK
		}
		w.WriteHeader(respPayload.Status)
		_, _ = w.Write([]byte(respPayload.Body))
	}
}
