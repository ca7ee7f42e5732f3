package iso7816

// Transport is the abstract "one command in, one response out" primitive the
// higher layers build on. The Client satisfies it over a physical card
// connection; a secure-messaging channel satisfies it by wrapping another
// Transport.
type Transport interface {
	Transmit(cmd *CommandAPDU) (*ResponseAPDU, error)
}

// Transmit sends a command and returns the final response of the exchange,
// after protocol auto-handling (61XX, 6CXX). It adapts Send to the Transport
// contract for callers that do not need the intermediate trace.
func (c *Client) Transmit(cmd *CommandAPDU) (*ResponseAPDU, error) {
	trace, err := c.Send(cmd)
	if err != nil {
		return nil, err
	}
	return trace.Last().Response, nil
}
