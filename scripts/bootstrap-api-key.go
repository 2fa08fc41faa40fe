// Command bootstrap-api-key creates a user with a tier and issues an API key
// for it, or revokes an existing key.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tierhost/tierhost/internal/auth"
	"github.com/tierhost/tierhost/internal/model"
	"github.com/tierhost/tierhost/internal/repository"
)

type output struct {
	UserID    string     `json:"user_id"`
	Username  string     `json:"username"`
	Tier      model.Tier `json:"tier"`
	KeyID     string     `json:"key_id"`
	Key       string     `json:"key"`
	KeyPrefix string     `json:"key_prefix"`
	Scopes    []string   `json:"scopes"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		username    = flag.String("username", "admin", "Username owning the API key")
		tierInput   = flag.String("tier", "Basic", "Tier for a new user: Basic, Premium or Enterprise")
		name        = flag.String("name", "bootstrap", "API key name")
		scopesInput = flag.String("scopes", "read,write", "Comma-separated scopes (read,write,admin)")
		env         = flag.String("env", auth.EnvLive, "Key environment: live or test")
		migrate     = flag.Bool("migrate", false, "Apply database migrations first")
		revoke      = flag.String("revoke", "", "Revoke the API key with this id instead of issuing one")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fail("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fail("connect database:", err)
	}
	defer repo.Close()

	if *migrate {
		if err := repo.Migrate(ctx); err != nil {
			fail("migrate:", err)
		}
	}

	if *revoke != "" {
		if err := repo.RevokeAPIKey(ctx, *revoke); err != nil {
			fail("revoke api key:", err)
		}
		// Cached principals expire on their own within the auth cache TTL.
		fmt.Println("revoked", *revoke)
		return
	}

	tier, ok := model.ParseTier(*tierInput)
	if !ok {
		fail("invalid tier:", *tierInput)
	}
	scopes, err := parseScopes(*scopesInput)
	if err != nil {
		fail(err)
	}

	user, err := ensureUser(ctx, repo, strings.TrimSpace(*username), tier)
	if err != nil {
		fail(err)
	}

	issued, err := auth.IssueAPIKey(*env)
	if err != nil {
		fail("generate api key:", err)
	}

	apiKey := &model.APIKey{
		ID:        ulid.Make().String(),
		UserID:    user.ID,
		KeyHash:   issued.Hash,
		KeyPrefix: issued.Prefix,
		Scopes:    scopes,
		Name:      *name,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.CreateAPIKey(ctx, apiKey); err != nil {
		fail("create api key:", err)
	}

	out := output{
		UserID:    user.ID,
		Username:  user.Username,
		Tier:      user.Tier,
		KeyID:     apiKey.ID,
		Key:       issued.Plaintext,
		KeyPrefix: apiKey.KeyPrefix,
		Scopes:    scopes,
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.Key)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fail("invalid format; use plain or json")
	}
}

func fail(args ...any) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(1)
}

func parseScopes(input string) ([]string, error) {
	var scopes []string
	for _, part := range strings.Split(input, ",") {
		scope := strings.TrimSpace(part)
		if scope == "" {
			continue
		}
		if !slices.Contains(model.ValidScopes, scope) {
			return nil, fmt.Errorf("invalid scope: %s", scope)
		}
		scopes = append(scopes, scope)
	}
	if len(scopes) == 0 {
		return nil, errors.New("at least one scope is required")
	}
	return scopes, nil
}

// ensureUser returns the named user, creating it with tier when missing.
// An existing user keeps its tier; asking for a different one is an error.
func ensureUser(ctx context.Context, repo *repository.Repository, username string, tier model.Tier) (*model.User, error) {
	if username == "" {
		return nil, errors.New("username is required")
	}

	existing, err := repo.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		if existing.Tier != tier {
			return nil, fmt.Errorf("user %s exists with tier %s", username, existing.Tier)
		}
		return existing, nil
	case !errors.Is(err, repository.ErrUserNotFound):
		return nil, fmt.Errorf("get user: %w", err)
	}

	user := &model.User{
		ID:        ulid.Make().String(),
		Username:  username,
		Tier:      tier,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}
