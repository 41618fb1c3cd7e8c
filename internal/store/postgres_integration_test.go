// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/latchkey/latchkey/internal/store"
)

// setupPostgresContainer starts PostgreSQL, applies migrations and connects.
func setupPostgresContainer() (*pgxpool.Pool, func(), error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("latchkey_test"),
		postgres.WithUsername("latchkey"),
		postgres.WithPassword("latchkey"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		_ = container.Terminate(ctx)
		return nil, nil, err
	}
	_ = migrator.Close()

	pool, err := store.Connect(ctx, connStr, store.ConnectOptions{Attempts: 3})
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}
	return pool, cleanup, nil
}

var _ = Describe("users schema", func() {
	var pool *pgxpool.Pool
	var cleanup func()

	BeforeEach(func() {
		var err error
		pool, cleanup, err = setupPostgresContainer()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		cleanup()
	})

	It("rejects duplicate emails", func() {
		ctx := context.Background()
		_, err := pool.Exec(ctx, `INSERT INTO users (id, email, password_hash) VALUES ('a', 'x@example.com', 'h')`)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, `INSERT INTO users (id, email, password_hash) VALUES ('b', 'x@example.com', 'h')`)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a reset hash without an expiry", func() {
		ctx := context.Background()
		_, err := pool.Exec(ctx,
			`INSERT INTO users (id, email, password_hash, reset_token_hash) VALUES ('a', 'x@example.com', 'h', 'r')`)
		Expect(err).To(HaveOccurred())
	})

	It("rejects two users sharing a reset hash", func() {
		ctx := context.Background()
		expires := time.Now().Add(time.Hour)
		_, err := pool.Exec(ctx,
			`INSERT INTO users (id, email, password_hash, reset_token_hash, reset_token_expires_at)
			 VALUES ('a', 'a@example.com', 'h', 'r', $1)`, expires)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx,
			`INSERT INTO users (id, email, password_hash, reset_token_hash, reset_token_expires_at)
			 VALUES ('b', 'b@example.com', 'h', 'r', $1)`, expires)
		Expect(err).To(HaveOccurred())
	})
})
