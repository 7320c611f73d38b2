package audit

import "context"

const unknown = "unknown"

// Client identifies the remote caller of the current request.
type Client struct {
	IP        string
	UserAgent string
}

type clientKey struct{}

func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// ClientFrom returns the client stored in ctx. Missing fields read "unknown".
func ClientFrom(ctx context.Context) Client {
	c, _ := ctx.Value(clientKey{}).(Client)
	if c.IP == "" {
		c.IP = unknown
	}
	if c.UserAgent == "" {
		c.UserAgent = unknown
	}
	return c
}
