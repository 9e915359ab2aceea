// Package display renders short status text to a networked LED matrix.
// Frames go out as single UDP datagrams in PPM (P6) format with an
// offset/layer footer, so any FlaschenTaschen-compatible server can show
// them. Display output is best-effort: send failures are recorded, never
// propagated into the audio path.
package display

import (
	"fmt"
	"net"
	"sync"
)

// Color is one RGB pixel.
type Color struct {
	R, G, B uint8
}

// Options configures the client geometry and orientation.
type Options struct {
	Width          int
	Height         int
	OffsetX        int
	OffsetY        int
	Layer          int
	FlipHorizontal bool
}

// Client owns a pixel buffer and a UDP socket to the matrix server.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	opts Options

	pixels  []Color
	lastErr error
}

// Dial connects to host:port and allocates the frame buffer.
func Dial(host string, port int, opts Options) (*Client, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("display size %dx%d is invalid", opts.Width, opts.Height)
	}
	conn, err := net.Dial("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("dialing display server: %w", err)
	}
	return &Client{
		conn:   conn,
		opts:   opts,
		pixels: make([]Color, opts.Width*opts.Height),
	}, nil
}

func (c *Client) Width() int  { return c.opts.Width }
func (c *Client) Height() int { return c.opts.Height }

// SetOffset repositions the frame on the server canvas.
func (c *Client) SetOffset(x, y, layer int) {
	c.mu.Lock()
	c.opts.OffsetX, c.opts.OffsetY, c.opts.Layer = x, y, layer
	c.mu.Unlock()
}

// Clear fills the buffer with a single color.
func (c *Client) Clear(col Color) {
	c.mu.Lock()
	for i := range c.pixels {
		c.pixels[i] = col
	}
	c.mu.Unlock()
}

// SetPixel writes one pixel. Out-of-bounds coordinates are ignored.
func (c *Client) SetPixel(x, y int, col Color) {
	if x < 0 || x >= c.opts.Width || y < 0 || y >= c.opts.Height {
		return
	}
	c.mu.Lock()
	c.pixels[y*c.opts.Width+x] = col
	c.mu.Unlock()
}

// Send pushes the current buffer to the server as one datagram.
func (c *Client) Send() error {
	c.mu.Lock()
	packet := encodeFrame(c.pixels, c.opts)
	_, err := c.conn.Write(packet)
	if err != nil {
		c.lastErr = err
	}
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("sending frame: %w", err)
	}
	return nil
}

// LastError reports the most recent send failure, if any.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Close releases the socket.
func (c *Client) Close() error {
	return c.conn.Close()
}

// encodeFrame builds the PPM P6 datagram. The offset comment rides between
// the dimension line and the maxval line, which the server parses as its
// placement hint. Horizontal flip happens here so the caller always draws
// in reading orientation.
func encodeFrame(pixels []Color, opts Options) []byte {
	header := fmt.Sprintf("P6\n%d %d\n", opts.Width, opts.Height)
	footer := ""
	if opts.OffsetX != 0 || opts.OffsetY != 0 || opts.Layer != 0 {
		footer = fmt.Sprintf("#FT: %d %d %d\n", opts.OffsetX, opts.OffsetY, opts.Layer)
	}

	buf := make([]byte, 0, len(header)+len(footer)+5+len(pixels)*3)
	buf = append(buf, header...)
	buf = append(buf, footer...)
	buf = append(buf, "255\n"...)

	for y := 0; y < opts.Height; y++ {
		for x := 0; x < opts.Width; x++ {
			sx := x
			if opts.FlipHorizontal {
				sx = opts.Width - 1 - x
			}
			p := pixels[y*opts.Width+sx]
			buf = append(buf, p.R, p.G, p.B)
		}
	}
	return buf
}
