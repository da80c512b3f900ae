package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"chorus/internal/config"
	"chorus/internal/queue"
	"chorus/internal/storage"
)

func newQueueCommand(configFlag *string) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Queue maintenance",
	}

	queueCmd.AddCommand(newQueueSendCommand(configFlag))
	queueCmd.AddCommand(newQueuePurgeCommand(configFlag))

	return queueCmd
}

func buildQueueClient(ctx context.Context, configFlag *string) (*queue.SQS, *config.Config, error) {
	cfg, _, _, err := config.Load(*configFlag)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	_, sqsClient, err := storage.NewAWSClients(ctx, storage.ClientOptions{
		Region:       cfg.AWS.Region,
		Endpoint:     cfg.AWS.Endpoint,
		UsePathStyle: cfg.AWS.UsePathStyle,
	})
	if err != nil {
		return nil, nil, err
	}
	return queue.NewSQS(sqsClient, cfg.AWS.QueueURL, int32(cfg.Workflow.VisibilityTimeoutSeconds)), cfg, nil
}

// newQueueSendCommand fabricates the bucket notification the worker would
// receive for an existing object, useful for reprocessing without a fresh
// upload.
func newQueueSendCommand(configFlag *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <object-key>",
		Short: "Enqueue a processing notification for an existing source object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := buildQueueClient(cmd.Context(), configFlag)
			if err != nil {
				return err
			}

			body, err := notificationFor(cfg.AWS.SourceBucket, args[0])
			if err != nil {
				return err
			}
			if err := client.Send(cmd.Context(), body, 0); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued notification for %s\n", args[0])
			return nil
		},
	}
	return cmd
}

func newQueuePurgeCommand(configFlag *string) *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Drop every message from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return fmt.Errorf("purge drops all pending jobs; re-run with --yes to confirm")
			}
			client, _, err := buildQueueClient(cmd.Context(), configFlag)
			if err != nil {
				return err
			}
			if err := client.Purge(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Queue purged.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm the purge")
	return cmd
}

func notificationFor(bucket, objectKey string) (string, error) {
	key := strings.TrimSpace(objectKey)
	if key == "" {
		return "", fmt.Errorf("object key must not be empty")
	}
	notification := map[string]any{
		"Records": []map[string]any{
			{
				"eventSource": "aws:s3",
				"eventName":   "ObjectCreated:Put",
				"s3": map[string]any{
					"bucket": map[string]any{"name": bucket},
					"object": map[string]any{"key": url.QueryEscape(key)},
				},
			},
		},
	}
	body, err := json.Marshal(notification)
	if err != nil {
		return "", fmt.Errorf("encode notification: %w", err)
	}
	return string(body), nil
}

func newUploadCommand(configFlag *string) *cobra.Command {
	var keyFlag string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an audio file to the source bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(*configFlag)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			filePath := args[0]
			if _, err := os.Stat(filePath); err != nil {
				return fmt.Errorf("stat %s: %w", filePath, err)
			}
			key := strings.TrimSpace(keyFlag)
			if key == "" {
				key = filepath.Base(filePath)
			}

			s3Client, _, err := storage.NewAWSClients(cmd.Context(), storage.ClientOptions{
				Region:       cfg.AWS.Region,
				Endpoint:     cfg.AWS.Endpoint,
				UsePathStyle: cfg.AWS.UsePathStyle,
			})
			if err != nil {
				return err
			}
			store := storage.NewS3(s3Client)
			if err := store.Upload(cmd.Context(), cfg.AWS.SourceBucket, key, filePath, ""); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s to s3://%s/%s\n", filePath, cfg.AWS.SourceBucket, key)
			fmt.Fprintln(cmd.OutOrStdout(), "The bucket notification will enqueue processing automatically.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&keyFlag, "key", "k", "", "Object key (defaults to the file name)")
	return cmd
}
