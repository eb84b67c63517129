package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"gameshop-api/internal/model"
	"gameshop-api/internal/repository"
	"gameshop-api/internal/secrets"
	"gameshop-api/pkg/uid"
)

// NewAccountInput is an account being put up for sale.
type NewAccountInput struct {
	Title       string
	Price       int64
	Rank        string
	HeroCount   int
	SkinCount   int
	Skins       []string
	Credentials model.Credentials
}

// InventoryService handles the stock side of the shop: accounts, blind boxes
// and their pools.
type InventoryService struct {
	store  repository.Store
	sealer *secrets.Sealer
}

// NewInventoryService creates a new inventory service.
func NewInventoryService(store repository.Store, sealer *secrets.Sealer) *InventoryService {
	return &InventoryService{store: store, sealer: sealer}
}

// CreateAccount seals the credentials and stores a new AVAILABLE account.
func (s *InventoryService) CreateAccount(ctx context.Context, in NewAccountInput) (*model.Account, error) {
	if strings.TrimSpace(in.Title) == "" || in.Price <= 0 {
		return nil, fmt.Errorf("title and positive price required: %w", model.ErrInvalidInput)
	}
	if in.Credentials.Username == "" || in.Credentials.Password == "" {
		return nil, fmt.Errorf("credentials required: %w", model.ErrInvalidInput)
	}

	now := time.Now().UTC()
	a := &model.Account{
		ID:        uid.New(),
		Title:     in.Title,
		Price:     in.Price,
		Rank:      in.Rank,
		HeroCount: in.HeroCount,
		SkinCount: in.SkinCount,
		Skins:     in.Skins,
		Status:    model.AccountAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if a.SkinCount == 0 {
		a.SkinCount = len(a.Skins)
	}

	sealed, err := s.sealer.Seal(a.ID, in.Credentials)
	if err != nil {
		return nil, err
	}
	a.Credentials = sealed

	if err := s.store.CreateAccount(ctx, a); err != nil {
		return nil, err
	}
	log.Printf("[InventoryService] Listed account %s (%s) at %d", a.ID, a.Title, a.Price)
	return a, nil
}

// GetAccount returns an account as a buyer may see it.
func (s *InventoryService) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	a, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == model.AccountHidden {
		return nil, fmt.Errorf("account %s: %w", id, model.ErrNotFound)
	}
	if a.Status != model.AccountSold {
		return a.Concealed(), nil
	}
	a.Credentials = nil
	return a, nil
}

// ListAccounts returns accounts in a status, or all when status is empty.
func (s *InventoryService) ListAccounts(ctx context.Context, status model.AccountStatus) ([]*model.Account, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("status %q: %w", status, model.ErrInvalidInput)
	}
	accounts, err := s.store.ListAccounts(ctx, status)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		a.Credentials = nil
	}
	return accounts, nil
}

// SetVisibility hides an unsold account from sale or lists it again.
func (s *InventoryService) SetVisibility(ctx context.Context, id string, visible bool) error {
	from, to := model.AccountAvailable, model.AccountHidden
	if visible {
		from, to = model.AccountHidden, model.AccountAvailable
	}
	return s.store.SetAccountStatus(ctx, id, []model.AccountStatus{from}, to)
}

// CreateBlindBox stores a new, empty blind box. A nil price sells each draw
// at the drawn account's own price.
func (s *InventoryService) CreateBlindBox(ctx context.Context, name string, price *int64) (*model.BlindBox, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("name required: %w", model.ErrInvalidInput)
	}
	if price != nil && *price <= 0 {
		return nil, fmt.Errorf("price must be positive: %w", model.ErrInvalidInput)
	}
	b := &model.BlindBox{ID: uid.New(), Name: name, Price: price, CreatedAt: time.Now().UTC()}
	if err := s.store.CreateBlindBox(ctx, b); err != nil {
		return nil, err
	}
	log.Printf("[InventoryService] Created blind box %s (%s)", b.ID, b.Name)
	return b, nil
}

// GetBlindBox returns a blind box with its remaining count.
func (s *InventoryService) GetBlindBox(ctx context.Context, id string) (*model.BlindBox, error) {
	return s.store.GetBlindBox(ctx, id)
}

// AddToPool puts AVAILABLE accounts into a blind box. The whole batch is
// rejected if any account cannot be pooled.
func (s *InventoryService) AddToPool(ctx context.Context, blindBoxID string, accountIDs []string) (*model.BlindBox, error) {
	if len(accountIDs) == 0 {
		return nil, fmt.Errorf("account ids required: %w", model.ErrInvalidInput)
	}
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if _, err := tx.GetBlindBox(ctx, blindBoxID); err != nil {
			return err
		}
		for _, id := range accountIDs {
			a, err := tx.GetAccount(ctx, id)
			if err != nil {
				return err
			}
			if a.Status != model.AccountAvailable {
				return fmt.Errorf("account %s is %s: %w", id, a.Status, model.ErrAccountUnavailable)
			}
			if err := tx.AddToPool(ctx, blindBoxID, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[InventoryService] Added %d accounts to blind box %s", len(accountIDs), blindBoxID)
	return s.store.GetBlindBox(ctx, blindBoxID)
}
