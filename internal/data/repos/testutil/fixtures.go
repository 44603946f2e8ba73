package testutil

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/pkg/ids"
)

func SeedCollection(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *domain.Collection {
	tb.Helper()
	now := time.Now().UTC()
	c := &domain.Collection{
		ID:           ids.New(),
		Name:         name,
		Description:  "seeded",
		CreatedOn:    now,
		CreatedByID:  ids.New(),
		ModifiedOn:   now,
		ModifiedByID: ids.New(),
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed collection: %v", err)
	}
	return c
}

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *domain.User {
	tb.Helper()
	now := time.Now().UTC()
	u := &domain.User{
		ID:         ids.New(),
		Name:       name,
		FullName:   name,
		Enabled:    true,
		CreatedOn:  now,
		ModifiedOn: now,
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}
