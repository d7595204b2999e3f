package httpclient

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/unkn0wn-root/restbridge/internal/errdef"
	"github.com/unkn0wn-root/restbridge/internal/restfile"
	"github.com/unkn0wn-root/restbridge/internal/vars"
)

type Options struct {
	Timeout            time.Duration
	FollowRedirects    bool
	InsecureSkipVerify bool
	ProxyURL           string
}

type Client struct {
	httpFactory func(Options) (*http.Client, error)
}

func NewClient() *Client {
	c := &Client{}
	c.httpFactory = buildHTTPClient
	return c
}

// SetHTTPFactory allows callers to override how http.Client instances are created.
// Passing nil restores the default factory.
func (c *Client) SetHTTPFactory(factory func(Options) (*http.Client, error)) {
	if factory == nil {
		factory = buildHTTPClient
	}
	c.httpFactory = factory
}

type Response struct {
	Status       string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	EffectiveURL string

	// Unresolved lists placeholder names that stayed verbatim during
	// resolution. The request is still sent; callers decide whether to warn.
	Unresolved []string
}

// Execute resolves every placeholder in the request and performs the call.
// The request itself is never mutated.
func (c *Client) Execute(
	ctx context.Context,
	req *restfile.Request,
	resolver *vars.Resolver,
	opts Options,
) (*Response, error) {
	httpReq, unresolved, err := prepareHTTPRequest(ctx, req, resolver)
	if err != nil {
		return nil, err
	}

	client, err := c.httpFactory(opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "execute %s %s", req.Method, httpReq.URL)
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "read response body")
	}

	return &Response{
		Status:       httpResp.Status,
		StatusCode:   httpResp.StatusCode,
		Headers:      httpResp.Header,
		Body:         body,
		Duration:     time.Since(start),
		EffectiveURL: httpResp.Request.URL.String(),
		Unresolved:   unresolved,
	}, nil
}

func prepareHTTPRequest(
	ctx context.Context,
	req *restfile.Request,
	resolver *vars.Resolver,
) (*http.Request, []string, error) {
	if req == nil {
		return nil, nil, errdef.New(errdef.CodeHTTP, "request is nil")
	}

	var unresolved []string
	expand := func(text string) string {
		if resolver == nil {
			return text
		}
		expanded, missing := resolver.Expand(text)
		unresolved = append(unresolved, missing...)
		return expanded
	}

	expandedURL := expand(strings.TrimSpace(req.URL))
	if expandedURL == "" {
		return nil, nil, errdef.New(errdef.CodeHTTP, "request url is empty")
	}

	var bodyReader io.Reader
	if req.Body != "" {
		bodyReader = strings.NewReader(expand(req.Body))
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, expandedURL, bodyReader)
	if err != nil {
		return nil, nil, errdef.Wrap(errdef.CodeHTTP, err, "build request")
	}

	for _, h := range req.Headers {
		httpReq.Header.Add(expand(h.Name), expand(h.Value))
	}

	if err := applyAuth(httpReq, req.Auth, expand); err != nil {
		return nil, nil, err
	}

	return httpReq, unresolved, nil
}

// applyAuth covers header/query placement only; token acquisition flows are
// the author's responsibility.
func applyAuth(
	httpReq *http.Request,
	auth *restfile.AuthSpec,
	expand func(string) string,
) error {
	if auth == nil || auth.Type == "" {
		return nil
	}
	switch strings.ToLower(auth.Type) {
	case "bearer":
		httpReq.Header.Set("Authorization", "Bearer "+expand(auth.Params["token"]))
	case "basic":
		httpReq.SetBasicAuth(expand(auth.Params["username"]), expand(auth.Params["password"]))
	case "apikey", "api-key":
		name := strings.TrimSpace(expand(auth.Params["name"]))
		if name == "" {
			name = "X-API-Key"
		}
		value := expand(auth.Params["value"])
		if strings.EqualFold(auth.Params["placement"], "query") {
			query := httpReq.URL.Query()
			query.Set(name, value)
			httpReq.URL.RawQuery = query.Encode()
		} else {
			httpReq.Header.Set(name, value)
		}
	default:
		return errdef.New(errdef.CodeHTTP, "unsupported auth type %s", auth.Type)
	}
	return nil
}

func buildHTTPClient(opts Options) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureSkipVerify {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{}
		}
		transport.TLSClientConfig.InsecureSkipVerify = true
	}
	if opts.ProxyURL != "" {
		proxy, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, errdef.Wrap(errdef.CodeHTTP, err, "parse proxy url")
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	client := &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
	}
	if !opts.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client, nil
}
