package flow

import "context"

// Rendered is a view together with the identity it was computed for.
type Rendered struct {
	View     View
	PlayerID string
	GameID   string
}

// Service loads a session's snapshot and resolves it in one call.
type Service struct {
	loader   *Loader
	resolver *Resolver
}

func NewService(l *Loader, r *Resolver) *Service {
	return &Service{loader: l, resolver: r}
}

// Render computes the current view for a session.
func (s *Service) Render(ctx context.Context, sessionID, rawQuery string) (Rendered, error) {
	snap := s.loader.Load(ctx, sessionID)
	v, err := s.resolver.Resolve(ctx, snap, rawQuery)
	if err != nil {
		return Rendered{}, err
	}
	p, _ := snap.Player.Get()
	return Rendered{View: v, PlayerID: p.ID, GameID: p.GameID}, nil
}

// Current computes the view for a session without capturing URL parameters.
func (s *Service) Current(ctx context.Context, sessionID string) (Rendered, error) {
	snap := s.loader.Load(ctx, sessionID)
	v, err := s.resolver.Current(ctx, snap)
	if err != nil {
		return Rendered{}, err
	}
	p, _ := snap.Player.Get()
	return Rendered{View: v, PlayerID: p.ID, GameID: p.GameID}, nil
}

// Advance completes the session's current step in the named sequence.
func (s *Service) Advance(ctx context.Context, sessionID, sequence string) (string, error) {
	snap := s.loader.Load(ctx, sessionID)
	p, _ := snap.Player.Get()
	return p.ID, s.resolver.Advance(ctx, snap, sequence)
}
