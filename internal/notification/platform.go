package notification

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vogiaan1904/ticketbottle-queuesync/internal/models"
)

var ErrUnsupported = errors.New("push notifications are not supported on this platform")

// Platform is the device side of push notifications: permission state and the single
// push subscription handle.
type Platform interface {
	Supported() bool
	Permission(ctx context.Context) models.Permission
	// RequestPermission shows the permission prompt and returns the resulting state.
	RequestPermission(ctx context.Context) (models.Permission, error)
	// Subscribe creates the push subscription, or returns the existing one.
	Subscribe(ctx context.Context) (models.PushSubscription, error)
	Unsubscribe(ctx context.Context, sub models.PushSubscription) error
}

// Prompter answers a permission prompt.
type Prompter interface {
	Prompt(ctx context.Context) (bool, error)
}

type PrompterFunc func(ctx context.Context) (bool, error)

func (f PrompterFunc) Prompt(ctx context.Context) (bool, error) { return f(ctx) }

// StaticPrompter always answers with the same decision.
func StaticPrompter(grant bool) Prompter {
	return PrompterFunc(func(context.Context) (bool, error) { return grant, nil })
}

// DevicePlatform is a headless Platform for agents and kiosks. The subscription carries
// a fresh P-256 public key and auth secret.
type DevicePlatform struct {
	endpointBase string
	prompter     Prompter

	mu         sync.Mutex
	permission models.Permission
	sub        *models.PushSubscription
}

func NewDevicePlatform(endpointBase string, initial models.Permission, prompter Prompter) *DevicePlatform {
	switch initial {
	case models.PermissionGranted, models.PermissionDenied:
	default:
		initial = models.PermissionDefault
	}

	return &DevicePlatform{
		endpointBase: strings.TrimRight(endpointBase, "/"),
		prompter:     prompter,
		permission:   initial,
	}
}

func (p *DevicePlatform) Supported() bool {
	return p.endpointBase != ""
}

func (p *DevicePlatform) Permission(ctx context.Context) models.Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permission
}

func (p *DevicePlatform) RequestPermission(ctx context.Context) (models.Permission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.permission != models.PermissionDefault || p.prompter == nil {
		return p.permission, nil
	}

	granted, err := p.prompter.Prompt(ctx)
	if err != nil {
		return p.permission, fmt.Errorf("permission prompt: %w", err)
	}

	if granted {
		p.permission = models.PermissionGranted
	} else {
		p.permission = models.PermissionDenied
	}

	return p.permission, nil
}

func (p *DevicePlatform) Subscribe(ctx context.Context) (models.PushSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.Supported() {
		return models.PushSubscription{}, ErrUnsupported
	}

	if p.sub != nil {
		return *p.sub, nil
	}

	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return models.PushSubscription{}, fmt.Errorf("generate key: %w", err)
	}

	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		return models.PushSubscription{}, fmt.Errorf("generate auth secret: %w", err)
	}

	id := uuid.NewString()
	p.sub = &models.PushSubscription{
		ID:       id,
		Endpoint: p.endpointBase + "/" + id,
		Keys: models.PushKeys{
			P256dh: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
			Auth:   base64.RawURLEncoding.EncodeToString(secret),
		},
		CreatedAt: time.Now().UTC(),
	}

	return *p.sub, nil
}

func (p *DevicePlatform) Unsubscribe(ctx context.Context, sub models.PushSubscription) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sub != nil && p.sub.ID == sub.ID {
		p.sub = nil
	}
	return nil
}

// Adopt makes sub the current subscription, as when restoring persisted state.
func (p *DevicePlatform) Adopt(sub models.PushSubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sub = &sub
}
