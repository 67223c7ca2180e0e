// Command borda-health probes a borda endpoint and exits non-zero when it
// is unhealthy. Meant for container HEALTHCHECK and orchestrator probes.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

func main() {
	url := flag.String("url", "http://127.0.0.1:1377/healthz", "health endpoint to probe")
	timeout := flag.Duration("timeout", 3*time.Second, "probe timeout")
	flag.Parse()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(*url)
	req.Header.SetMethod(fasthttp.MethodGet)

	client := &fasthttp.Client{ReadTimeout: *timeout, WriteTimeout: *timeout}
	if err := client.DoTimeout(req, resp, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "probe failed: %v\n", err)
		os.Exit(1)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		fmt.Fprintf(os.Stderr, "unhealthy: status %d\n", resp.StatusCode())
		os.Exit(1)
	}
	fmt.Printf("%s\n", resp.Body())
}
