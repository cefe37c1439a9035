package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"yams-sync/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config points the object store at Cloudflare R2 (or any S3 endpoint).
type S3Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	// Endpoint overrides the R2 endpoint derived from AccountID.
	Endpoint string
}

// S3Store keeps one JSON object per profile and per game record:
//
//	owners/<owner>/profiles/<id>.json
//	owners/<owner>/games/<id>.json
type S3Store struct {
	Client *s3.Client
	Bucket string
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	return &S3Store{Client: client, Bucket: cfg.Bucket}, nil
}

func (s *S3Store) IsConnected(ctx context.Context) bool {
	_, err := s.Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.Bucket)})
	return err == nil
}

func (s *S3Store) PutProfile(ctx context.Context, ownerID string, p models.PlayerProfile) error {
	return s.putJSON(ctx, profileKey(ownerID, p.ID), p)
}

func (s *S3Store) GetProfile(ctx context.Context, ownerID, profileID string) (models.PlayerProfile, bool, error) {
	var p models.PlayerProfile
	found, err := s.getJSON(ctx, profileKey(ownerID, profileID), &p)
	return p, found, err
}

func (s *S3Store) ListProfiles(ctx context.Context, ownerID string) ([]models.PlayerProfile, error) {
	keys, err := s.listKeys(ctx, ownerPrefix(ownerID, "profiles"))
	if err != nil {
		return nil, err
	}
	profiles := make([]models.PlayerProfile, 0, len(keys))
	for _, key := range keys {
		var p models.PlayerProfile
		found, err := s.getJSON(ctx, key, &p)
		if err != nil {
			return nil, err
		}
		if found {
			profiles = append(profiles, p)
		}
	}
	return profiles, nil
}

// DeleteProfile removes the object. S3 deletes of missing keys succeed.
func (s *S3Store) DeleteProfile(ctx context.Context, ownerID, profileID string) error {
	_, err := s.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(profileKey(ownerID, profileID)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from R2: %w", err)
	}
	return nil
}

func (s *S3Store) PutGameRecord(ctx context.Context, ownerID string, rec models.GameRecord) error {
	return s.putJSON(ctx, gameKey(ownerID, rec.ID), rec)
}

// ListGameRecords reads every game object of the owner and filters in memory.
func (s *S3Store) ListGameRecords(ctx context.Context, ownerID string, filter models.GameRecordFilter) ([]models.GameRecord, error) {
	keys, err := s.listKeys(ctx, ownerPrefix(ownerID, "games"))
	if err != nil {
		return nil, err
	}
	var games []models.GameRecord
	for _, key := range keys {
		var g models.GameRecord
		found, err := s.getJSON(ctx, key, &g)
		if err != nil {
			return nil, err
		}
		if found && matchesFilter(g, filter) {
			games = append(games, g)
		}
	}
	sortGames(games)
	if filter.Limit > 0 && len(games) > filter.Limit {
		games = games[:filter.Limit]
	}
	return games, nil
}

func (s *S3Store) putJSON(ctx context.Context, key string, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	_, err = s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to R2: %w", err)
	}
	return nil
}

func (s *S3Store) getJSON(ctx context.Context, key string, out any) (bool, error) {
	obj, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return false, nil
		}
		return false, fmt.Errorf("failed to fetch %s from R2: %w", key, err)
	}
	defer obj.Body.Close()
	if err := json.NewDecoder(obj.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (s *S3Store) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	pages := s3.NewListObjectsV2Paginator(s.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if key := aws.ToString(obj.Key); strings.HasSuffix(key, ".json") {
				keys = append(keys, key)
			}
		}
	}
	return keys, nil
}

func ownerPrefix(ownerID, collection string) string {
	return path.Join("owners", ownerID, collection) + "/"
}

func profileKey(ownerID, profileID string) string {
	return ownerPrefix(ownerID, "profiles") + profileID + ".json"
}

func gameKey(ownerID, gameID string) string {
	return ownerPrefix(ownerID, "games") + gameID + ".json"
}

func matchesFilter(g models.GameRecord, f models.GameRecordFilter) bool {
	if f.PlayerID != "" && g.PlayerID != f.PlayerID {
		return false
	}
	if !f.Since.IsZero() && g.PlayedAt.Before(f.Since) {
		return false
	}
	return true
}

// sortGames orders newest first, ties by id, like the SQL backends.
func sortGames(games []models.GameRecord) {
	sort.Slice(games, func(i, j int) bool {
		if !games[i].PlayedAt.Equal(games[j].PlayedAt) {
			return games[i].PlayedAt.After(games[j].PlayedAt)
		}
		return games[i].ID < games[j].ID
	})
}
