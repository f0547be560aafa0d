/*
Package fetch is the network transport behind the resource loader.

Client wraps resty over a go-retryablehttp transport, waits on an
x/time/rate limiter before each request and keeps one circuit breaker per
origin host, so a failing CDN fails fast without affecting healthy origins.

	client := fetch.NewClient(fetch.DefaultConfig())
	resp, err := client.Fetch(ctx, "https://cdn.example.com/app/index.html")
	// resp.URL is the final URL after redirects
*/
package fetch
