package telemetry

// Stub for OSS builds - hosted analytics is not part of the open gateway.
// Provides no-op implementations so pipeline call sites stay in place.

type Client struct{}

var GlobalClient *Client = nil

func (c *Client) Track(event string, props map[string]interface{}) {}
