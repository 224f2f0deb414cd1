package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alerts-manage-api/internal/config"
	"github.com/alerts-manage-api/internal/infrastructure/dynamo"
	"github.com/alerts-manage-api/internal/infrastructure/sns"
	"github.com/alerts-manage-api/internal/infrastructure/telegram"
	"github.com/alerts-manage-api/internal/infrastructure/whop"
	transporthttp "github.com/alerts-manage-api/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	// Whop token verifier (optional — graceful fallback if key material is missing).
	var whopVerifier *whop.Verifier
	if v, err := whop.NewVerifier(cfg); err == nil {
		whopVerifier = v
	} else {
		log.Printf("WARN: Whop verifier not available: %v", err)
	}

	// SNS SMS sender (optional — graceful fallback).
	var smsSender sns.SMSSender
	if sender, err := sns.NewSender(cfg); err == nil {
		smsSender = sender
	} else {
		log.Printf("WARN: SNS sender not available: %v", err)
	}

	// Telegram chat sender (optional — graceful fallback).
	var chatSender telegram.ChatSender
	if sender, err := telegram.NewSender(cfg); err == nil {
		chatSender = sender
	} else {
		log.Printf("WARN: Telegram sender not available: %v", err)
	}

	deps := &transporthttp.Deps{
		SubscriberRepo: dynamo.NewSubscriberRepo(dynamoClient, cfg.DynamoTables.Subscribers),
		ChatRepo:       dynamo.NewChatSubscriberRepo(dynamoClient, cfg.DynamoTables.ChatSubscribers),
		TokenRepo:      dynamo.NewTokenRepo(dynamoClient, cfg.DynamoTables.ManageTokens),
		SMSSender:      smsSender,
		ChatSender:     chatSender,
		WhopVerifier:   whopVerifier,
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
