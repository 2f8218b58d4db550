package services

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sprout-escrow/backend/internal/approval"
	"github.com/sprout-escrow/backend/internal/auth"
	"github.com/sprout-escrow/backend/internal/config"
	"github.com/sprout-escrow/backend/internal/events"
	"github.com/sprout-escrow/backend/internal/models"
	"github.com/sprout-escrow/backend/internal/navigation"
	"github.com/sprout-escrow/backend/internal/remote"
	"github.com/sprout-escrow/backend/internal/repositories"
	"github.com/sprout-escrow/backend/internal/xrpl"
)

type WalletService struct {
	remote    Remote
	approvals *approval.Manager
	wallets   WalletStore
	audit     AuditLogger
	publisher events.Publisher
	nav       Navigator
	cfg       *config.Config
	log       *zap.Logger
}

func NewWalletService(
	rem Remote,
	approvals *approval.Manager,
	wallets WalletStore,
	audit AuditLogger,
	publisher events.Publisher,
	nav Navigator,
	cfg *config.Config,
	log *zap.Logger,
) *WalletService {
	return &WalletService{
		remote:    rem,
		approvals: approvals,
		wallets:   wallets,
		audit:     audit,
		publisher: publisher,
		nav:       nav,
		cfg:       cfg,
		log:       log,
	}
}

func (s *WalletService) Options() []models.WalletOption {
	return models.WalletOptions(s.cfg.XRPLNetwork)
}

// LoginSession is what the connect page polls.
type LoginSession struct {
	approval.View
	Wallet *models.Wallet `json:"wallet,omitempty"`
	Token  string         `json:"token,omitempty"`
}

// StartLogin запрашивает у удалённого API запрос на подпись логина и
// начинает опрос. Повторный вызов с тем же session отменяет предыдущий.
func (s *WalletService) StartLogin(ctx context.Context, session, kind string) (approval.View, error) {
	if session == "" {
		return approval.View{}, invalid("session", "is required")
	}
	if kind == "" {
		kind = models.WalletXUMM
	}
	if !models.IsWalletSupported(kind, s.cfg.XRPLNetwork) {
		return approval.View{}, fmt.Errorf("%w: %s on %s", ErrUnsupportedWallet, kind, s.cfg.XRPLNetwork)
	}

	network := s.cfg.XRPLNetwork
	p, _, err := s.approvals.Start(ctx, approval.Flow{
		Kind:     approval.KindLogin,
		Key:      "login:" + session,
		Owner:    session,
		Initiate: s.remote.LoginInitiate(network),
		Check:    s.remote.LoginCheck(),
		OnResult: func(ctx context.Context, p *approval.Poller, res approval.Result) {
			s.onLogin(ctx, session, kind, network, res)
		},
	})
	if err != nil {
		return approval.View{}, err
	}
	return p.View(), nil
}

func (s *WalletService) onLogin(ctx context.Context, session, kind, network string, res approval.Result) {
	if res.State != approval.StateApproved {
		s.log.Info("wallet login not approved",
			zap.String("request_id", res.RequestID),
			zap.String("state", string(res.State)),
			zap.Error(res.Err),
		)
		return
	}

	w, err := s.walletFromPayload(res.Payload, kind, network)
	if err != nil {
		s.log.Error("approved login carries a bad payload", zap.String("request_id", res.RequestID), zap.Error(err))
		return
	}
	if err := s.wallets.Connect(ctx, w); err != nil {
		s.log.Error("failed to save wallet", zap.String("address", w.Address), zap.Error(err))
		return
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		Actor:      w.Address,
		ActorType:  "wallet",
		Action:     "wallet_connected",
		EntityType: "wallet",
		EntityID:   w.Address,
		Meta:       map[string]any{"network": network, "kind": kind, "request_id": res.RequestID, "session": session},
	})

	_ = s.publisher.Publish(ctx, events.StreamApproval,
		events.ApprovalResolved(w.Address, res.RequestID, approval.KindLogin, string(res.State)))

	if _, err := s.nav.Dispatch(ctx, w.Address, navigation.Message{Type: navigation.MsgWalletConnected, Wallet: w.Address}); err != nil {
		s.log.Debug("wallet_connected not applied", zap.String("address", w.Address), zap.Error(err))
	}

	s.log.Info("wallet connected", zap.String("address", w.Address), zap.String("network", network))
}

func (s *WalletService) walletFromPayload(payload json.RawMessage, kind, network string) (*models.Wallet, error) {
	var st remote.LoginStatus
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, err
	}
	if err := xrpl.ValidateAddress(st.Account); err != nil {
		return nil, err
	}
	if st.Network != "" {
		network = st.Network
	}
	return &models.Wallet{
		Address:  st.Account,
		Network:  network,
		Kind:     kind,
		Balances: st.Balances,
		IsActive: true,
	}, nil
}

// loginPoller finds a login request started by session. The request ID is
// printed in the QR code, so it alone proves nothing.
func (s *WalletService) loginPoller(requestID, session string) (*approval.Poller, bool) {
	p, ok := s.approvals.Get(requestID)
	if !ok || p.Kind() != approval.KindLogin || session == "" {
		return nil, false
	}
	if subtle.ConstantTimeCompare([]byte(p.Owner()), []byte(session)) != 1 {
		return nil, false
	}
	return p, true
}

// LoginStatus returns the state of a login request of the session. Once it is
// approved the result carries the wallet and a freshly signed token.
func (s *WalletService) LoginStatus(ctx context.Context, requestID, session string) (*LoginSession, error) {
	p, ok := s.loginPoller(requestID, session)
	if !ok {
		return nil, ErrNotFound
	}

	out := &LoginSession{View: p.View()}
	if out.State != approval.StateApproved {
		return out, nil
	}

	w, err := s.walletFromPayload(p.Result().Payload, "", s.cfg.XRPLNetwork)
	if err != nil {
		return nil, err
	}
	if stored, err := s.wallets.Get(ctx, w.Address); err == nil {
		w = stored
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	token, err := auth.GenerateJWT(s.cfg.JWTSecret, w.Address, w.Network, s.cfg.JWTExpiration)
	if err != nil {
		return nil, err
	}
	out.Wallet = w
	out.Token = token
	return out, nil
}

func (s *WalletService) CancelLogin(requestID, session string) bool {
	p, ok := s.loginPoller(requestID, session)
	if !ok {
		return false
	}
	p.Cancel()
	return true
}

func (s *WalletService) GetWallet(ctx context.Context, address string) (*models.Wallet, error) {
	w, err := s.wallets.Get(ctx, address)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.wallets.Touch(ctx, address); err != nil {
		s.log.Warn("failed to touch wallet", zap.String("address", address), zap.Error(err))
	}
	return w, nil
}

// Disconnect помечает кошелёк неактивным и возвращает сессию на лендинг.
func (s *WalletService) Disconnect(ctx context.Context, address string) error {
	err := s.wallets.Disconnect(ctx, address)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		Actor:      address,
		ActorType:  "wallet",
		Action:     "wallet_disconnected",
		EntityType: "wallet",
		EntityID:   address,
	})

	if _, err := s.nav.Dispatch(ctx, address, navigation.Message{Type: navigation.MsgDisconnect}); err != nil {
		s.log.Debug("disconnect navigation failed", zap.Error(err))
	}
	s.nav.Forget(address)
	return nil
}
