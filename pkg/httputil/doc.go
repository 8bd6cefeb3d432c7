// Package httputil provides the HTTP plumbing shared by the descriptor
// fetcher and the payload downloader.
//
//   - [Retry]: retries transient failures with exponential backoff
//   - [CheckStatus]: maps HTTP status codes to quickmod error codes
//   - [NewClient]: an HTTP client with a request timeout
//
// Only errors wrapped with [Retryable] are retried; [CheckStatus] marks 429
// and 5xx responses that way and callers mark transport errors themselves:
//
//	err := httputil.Retry(ctx, httputil.DefaultPolicy, func() error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return httputil.Retryable(err)
//	    }
//	    defer resp.Body.Close()
//	    return httputil.CheckStatus(url, resp.StatusCode)
//	})
package httputil
