package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/repository/firestore"
	"github.com/Netflix/dispatch-sub000/pkg/repository/memory"
	"github.com/Netflix/dispatch-sub000/pkg/repository/postgres"
)

const testOrg = "acme"

func newMemoryRepository(t *testing.T) interfaces.Repository {
	t.Helper()
	return memory.New()
}

func newPostgresRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	prefix := fmt.Sprintf("test_%d", time.Now().UnixNano())
	repo, err := postgres.New(ctx, dsn,
		postgres.WithSchemaPrefix(prefix),
		postgres.WithCoreSchema(prefix+"_core"),
	)
	if err != nil {
		t.Fatalf("failed to create postgres repository: %v", err)
	}
	if err := repo.Migrate(ctx, testOrg); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Drop(context.Background(), testOrg); err != nil {
			t.Logf("failed to drop schemas: %v", err)
		}
		_ = repo.Close()
	})
	return repo
}

// newFirestoreRepository runs against the project in TEST_FIRESTORE_PROJECT_ID,
// typically an emulator selected by FIRESTORE_EMULATOR_HOST
func newFirestoreRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}

	ctx := context.Background()
	repo, err := firestore.New(ctx, projectID,
		firestore.WithDatabaseID(os.Getenv("TEST_FIRESTORE_DATABASE_ID")),
		firestore.WithCollectionPrefix(fmt.Sprintf("test_%d_", time.Now().UnixNano())),
		firestore.WithLockLease(5*time.Second),
	)
	if err != nil {
		t.Fatalf("failed to create firestore repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}
