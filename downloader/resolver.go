package downloader

import (
	"context"
	"errors"
	"sync"

	"sharefetch/internal"
)

// ErrDownloadUnavailable is returned by Download when the current state does
// not offer a download for the token. No request is made in that case.
var ErrDownloadUnavailable = errors.New("download not available in current state")

// invalidLinkMessage is shown for empty tokens
const invalidLinkMessage = "invalid link"

// ShareLinkResolver resolves a share token to a display state and performs
// the guarded download. It owns exactly one state cell. Overlapping calls
// are not serialized: whichever response arrives last decides the state.
type ShareLinkResolver struct {
	api     internal.ShareAPI
	saver   internal.FileSaver
	display internal.Display

	mu    sync.Mutex
	state internal.ResolutionState
}

// NewShareLinkResolver creates a resolver in the Loading state. saver and
// display may be nil.
func NewShareLinkResolver(api internal.ShareAPI, saver internal.FileSaver, display internal.Display) *ShareLinkResolver {
	return &ShareLinkResolver{
		api:     api,
		saver:   saver,
		display: display,
		state:   internal.ResolutionState{Kind: internal.StateLoading},
	}
}

// State returns a copy of the current state
func (r *ShareLinkResolver) State() internal.ResolutionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// setState replaces the state and notifies the display
func (r *ShareLinkResolver) setState(s internal.ResolutionState) internal.ResolutionState {
	r.mu.Lock()
	prev := r.state.Kind
	r.state = s
	r.mu.Unlock()

	if prev != s.Kind {
		internal.LogDebug("Share link %s: %s -> %s", s.Token, prev, s.Kind)
	}
	if r.display != nil {
		if err := r.display.Render(s); err != nil {
			internal.LogWarn("Failed to render state %s: %v", s.Kind, err)
		}
	}
	return s
}

// Resolve fetches the metadata for token and settles the state. An empty
// token settles immediately in ConnectionError without a request.
func (r *ShareLinkResolver) Resolve(ctx context.Context, token internal.ShareToken) internal.ResolutionState {
	if token.IsEmpty() {
		return r.setState(internal.ResolutionState{
			Kind:    internal.StateConnectionError,
			Token:   token,
			Message: invalidLinkMessage,
			Err:     internal.NewInvalidTokenError("empty token"),
		})
	}

	// a refresh of an already settled token keeps showing the old state
	// until the answer arrives
	if current := r.State(); current.Token != token || current.Kind == internal.StateLoading {
		r.setState(internal.ResolutionState{Kind: internal.StateLoading, Token: token})
	}

	meta, err := r.api.Info(ctx, token)
	if err != nil {
		return r.setState(stateFromError(token, err))
	}

	kind := internal.StateInfo
	if !meta.DownloadAvailable() {
		kind = internal.StateLimitReached
	}
	return r.setState(internal.ResolutionState{Kind: kind, Token: token, Metadata: meta})
}

// Download fetches the artifact for token and hands it to the saver once,
// then re-resolves so the server's download count is reflected. It requires
// the current state to be Info for the same token with downloads left;
// otherwise it returns the current state and ErrDownloadUnavailable.
//
// Server refusals and transport failures settle the state and are also
// returned as the error. A local save failure is returned after the state
// has been refreshed, since the server has already counted the download.
func (r *ShareLinkResolver) Download(ctx context.Context, token internal.ShareToken) (internal.ResolutionState, error) {
	current := r.State()
	if current.Token != token || !current.DownloadAvailable() {
		return current, ErrDownloadUnavailable
	}

	payload, err := r.api.Download(ctx, token)
	if err != nil {
		return r.setState(stateFromError(token, err)), err
	}
	defer payload.Body.Close()

	filename := ResolveFilename(payload.Header)
	internal.LogDebug("Downloading %s (%d bytes)", filename, payload.Size)

	var saveErr error
	if r.saver != nil {
		saveErr = r.saver.Save(ctx, filename, payload.Body, payload.Size)
	}

	if saveErr != nil && internal.IsErrorType(saveErr, internal.ErrConnection) {
		return r.setState(stateFromError(token, saveErr)), saveErr
	}

	return r.Resolve(ctx, token), saveErr
}

// stateFromError maps a Share API error to the state it produces
func stateFromError(token internal.ShareToken, err error) internal.ResolutionState {
	s := internal.ResolutionState{
		Kind:  internal.StateConnectionError,
		Token: token,
		Err:   err,
	}
	if se, ok := internal.AsShareError(err); ok {
		s.Kind = se.StateKind()
		s.Message = se.Message
	} else {
		s.Message = err.Error()
	}
	return s
}
