package notification

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/lensnet-go/internal/privacy"
)

// ShoutrrrProvider sends through one shoutrrr router covering every URL.
type ShoutrrrProvider struct {
	name    string
	enabled bool
	urls    []string
	types   map[Type]bool
	sender  *router.ServiceRouter
	timeout time.Duration
}

// NewShoutrrrProvider creates a provider for urls. With no supportedTypes
// every type is delivered.
func NewShoutrrrProvider(name string, enabled bool, urls []string, supportedTypes []Type, timeout time.Duration) *ShoutrrrProvider {
	sp := &ShoutrrrProvider{
		name:    strings.TrimSpace(name),
		enabled: enabled,
		urls:    slices.Clone(urls),
		types:   map[Type]bool{},
		timeout: timeout,
	}
	if sp.name == "" {
		sp.name = "shoutrrr"
	}
	if len(supportedTypes) == 0 {
		supportedTypes = []Type{TypeBestShot, TypeError, TypeWarning, TypeInfo, TypeSystem}
	}
	for _, t := range supportedTypes {
		sp.types[t] = true
	}
	return sp
}

func (s *ShoutrrrProvider) GetName() string          { return s.name }
func (s *ShoutrrrProvider) IsEnabled() bool          { return s.enabled }
func (s *ShoutrrrProvider) SupportsType(t Type) bool { return s.types[t] }

// ValidateConfig builds the sender, which parses every URL.
func (s *ShoutrrrProvider) ValidateConfig() error {
	if !s.enabled {
		return nil
	}
	if len(s.urls) == 0 {
		return fmt.Errorf("at least one URL is required")
	}
	sender, err := shoutrrr.CreateSender(s.urls...)
	if err != nil {
		// URLs carry tokens
		return privacy.ScrubError(err)
	}
	s.sender = sender
	if s.timeout > 0 {
		s.sender.Timeout = s.timeout
	}
	s.sender.SetLogger(log.New(io.Discard, "", 0))
	return nil
}

// Endpoints returns the configured URLs reduced to scheme and host.
func (s *ShoutrrrProvider) Endpoints() []string {
	out := make([]string, len(s.urls))
	for i, u := range s.urls {
		out[i] = privacy.RedactEndpoint(u)
	}
	return out
}

func (s *ShoutrrrProvider) Send(ctx context.Context, n *Notification) error {
	if s.sender == nil {
		return fmt.Errorf("shoutrrr sender not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := stypes.Params{}
	if n.Title != "" {
		params.SetTitle(n.Title)
	}
	for _, e := range s.sender.Send(n.Message, &params) {
		if e != nil {
			return privacy.ScrubError(e)
		}
	}
	return nil
}
