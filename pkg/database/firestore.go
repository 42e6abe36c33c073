package database

import (
	"context"
	"fmt"

	"chat_room_client/pkg/logger"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// NewFirestoreClient init firebase app and its firestore client
func NewFirestoreClient(ctx context.Context, c FirestoreConnection) (*firestore.Client, error) {
	var opts []option.ClientOption
	if c.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(c.CredentialsFile))
	}

	var conf *firebase.Config
	if c.ProjectID != "" {
		conf = &firebase.Config{ProjectID: c.ProjectID}
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firestore: %w", err)
	}
	logger.Log.Info("firestore connected", zap.String("project", c.ProjectID))
	return client, nil
}
