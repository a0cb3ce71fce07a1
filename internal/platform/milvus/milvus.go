package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

type Options struct {
	Address  string
	Username string
	Password string
	DBName   string
}

func New(ctx context.Context, opts Options) (*milvusclient.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := milvusclient.New(dialCtx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   opts.DBName,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus failed: %w", err)
	}
	return client, nil
}
