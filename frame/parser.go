package frame

// Parser is an incremental STOMP frame parser: it consumes byte chunks of
// arbitrary size, in order, and yields complete frames as soon as each one
// is fully buffered. A single Parser must not be shared across logically
// distinct byte streams — it carries partial-frame state between calls to
// Feed.
//
// The zero value is not usable; construct with NewParser.
type Parser struct {
	strictUnknownCommand bool

	// discarding is set after an unknown command line: every byte up to
	// the next NUL belongs to that frame and is dropped.
	discarding bool

	currentLine    []byte
	headersProcessed bool
	contentLen      int
	bodyLen         int
	headers         Headers
	command         Command
	haveCommand     bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithStrictUnknownCommand makes the parser return an error from Feed the
// instant it sees a command line it does not recognize, instead of the
// default behavior of silently discarding the malformed frame and
// resynchronizing at the next frame boundary. See spec §9's open question
// on unknown-command handling.
func WithStrictUnknownCommand() Option {
	return func(p *Parser) { p.strictUnknownCommand = true }
}

// NewParser returns a ready-to-use Parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{headers: Headers{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Parser) reset() {
	p.headersProcessed = false
	p.currentLine = nil
	p.bodyLen = 0
	p.contentLen = 0
	p.headers = Headers{}
	p.command = ""
	p.haveCommand = false
	p.discarding = false
}

// UnknownCommandError is returned by Feed when WithStrictUnknownCommand is
// set and a command line does not match any known STOMP command.
type UnknownCommandError struct {
	Command string
}

func (e *UnknownCommandError) Error() string {
	return "frame: unknown command " + e.Command
}

// Feed appends chunk to the parser's internal buffer and returns every
// frame (including HEARTBEAT pseudo-frames) that became complete as a
// result. Partial frames remain buffered for the next call. Feed never
// loses bytes across chunk boundaries — splitting a valid frame stream at
// any byte offsets and feeding the pieces in order yields the same frame
// sequence as feeding it whole.
func (p *Parser) Feed(chunk []byte) ([]Frame, error) {
	var out []Frame

	for _, b := range chunk {
		if p.discarding {
			if b == null {
				p.reset()
			}
			continue
		}

		switch {
		case b == null:
			if p.headersProcessed {
				if p.contentLen == 0 || p.bodyLen == p.contentLen {
					out = append(out, makeFrame(p.command, p.headers, p.currentLine))
					p.reset()
				} else {
					p.currentLine = append(p.currentLine, b)
					p.bodyLen++
				}
			} else {
				// NUL while seeking a command or mid-headers: frame boundary, discard.
				p.reset()
			}

		case !p.headersProcessed && b == newline:
			if len(p.currentLine) > 0 || p.haveCommand {
				if n := len(p.currentLine); n > 0 && p.currentLine[n-1] == carriage {
					p.currentLine = p.currentLine[:n-1]
				}
				p.headersProcessed = len(p.currentLine) == 0

				if len(p.currentLine) > 0 {
					if !p.haveCommand {
						cmd := Command(p.currentLine)
						if !knownCommands[cmd] {
							if p.strictUnknownCommand {
								err := &UnknownCommandError{Command: string(p.currentLine)}
								p.reset()
								return out, err
							}
							p.reset()
							p.discarding = true
							continue
						}
						p.command = cmd
						p.haveCommand = true
					} else {
						if key, value, ok := parseHeaderLine(p.currentLine); ok {
							if _, exists := p.headers[key]; !exists {
								p.headers[key] = value
								if key == "content-length" {
									if n, ok := parseContentLength(value); ok {
										p.contentLen = n
									}
								}
							}
						}
					}
					p.currentLine = nil
				}
			} else {
				out = append(out, Heartbeat)
			}

		default:
			p.currentLine = append(p.currentLine, b)
			if p.headersProcessed && p.contentLen > 0 {
				p.bodyLen++
			}
		}
	}

	return out, nil
}
