package htmlutil

import (
	"errors"
	"io"

	"golang.org/x/net/html"
)

// Token is a start tag, end tag or text run.
type Token struct {
	Type html.TokenType
	// Data is the lowercase tag name, or the unescaped text for text tokens.
	Data string
	Attr []html.Attribute
}

// StreamTokenizer tokenizes markup that is pushed to it in chunks of any size. The chunks
// are piped into an html.Tokenizer running on its own goroutine, so chunk boundaries never
// show up in the tokens. Comments, doctypes and the content of script and style elements
// are dropped.
//
// emit is called from the tokenizer goroutine, one token at a time. Close must be called
// once writing is done, it waits for the last token to be emitted.
type StreamTokenizer struct {
	pw   *io.PipeWriter
	done chan struct{}
	// err is written by the tokenizer goroutine before done is closed.
	err error
}

func NewStreamTokenizer(emit func(Token) error) *StreamTokenizer {
	pr, pw := io.Pipe()
	t := &StreamTokenizer{
		pw:   pw,
		done: make(chan struct{}),
	}
	go t.run(pr, emit)
	return t
}

// Write feeds the next chunk. After emit returns an error every following Write returns
// that error, and no more tokens are emitted.
func (t *StreamTokenizer) Write(p []byte) (int, error) {
	n, err := t.pw.Write(p)
	if err != nil {
		<-t.done
		if t.err != nil {
			return n, t.err
		}
		return n, err
	}
	return n, nil
}

// Close flushes the trailing text and waits for the tokenizer goroutine. Incomplete tags
// at the end of the input are discarded.
func (t *StreamTokenizer) Close() error {
	t.pw.Close()
	<-t.done
	return t.err
}

func (t *StreamTokenizer) run(pr *io.PipeReader, emit func(Token) error) {
	defer close(t.done)

	err := tokenize(html.NewTokenizer(pr), emit)
	if err != nil {
		t.err = err
		pr.CloseWithError(err)
		return
	}
	pr.Close()
}

func tokenize(z *html.Tokenizer, emit func(Token) error) error {
	skipText := false
	for {
		typ := z.Next()
		switch typ {
		case html.ErrorToken:
			err := z.Err()
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case html.TextToken:
			if skipText {
				continue
			}
			err := emit(Token{Type: html.TextToken, Data: string(z.Text())})
			if err != nil {
				return err
			}
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			skipText = typ == html.StartTagToken && (tok.Data == "script" || tok.Data == "style")
			err := emit(Token{Type: typ, Data: tok.Data, Attr: tok.Attr})
			if err != nil {
				return err
			}
		}
	}
}
