package publisher

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ryosukesatoh/proposal-feed/internal/fetcher"
)

// StdoutPublisher prints each embed for local dry runs.
type StdoutPublisher struct {
	out io.Writer
}

var _ Publisher = (*StdoutPublisher)(nil)

func NewStdoutPublisher() *StdoutPublisher {
	return &StdoutPublisher{out: os.Stdout}
}

func (p *StdoutPublisher) Publish(_ context.Context, proposal fetcher.Proposal, summary string) error {
	embed := BuildEmbed(proposal, summary)
	_, err := fmt.Fprintf(p.out, "%s\n%s%s\n\n", strings.Repeat("=", 72), plainText(embed), strings.Repeat("=", 72))
	return err
}
