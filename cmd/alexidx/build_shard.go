package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexandria-go/alexidx/internal/config"
	"github.com/alexandria-go/alexidx/internal/logx"
	"github.com/alexandria-go/alexidx/internal/metrics"
	"github.com/alexandria-go/alexidx/internal/shardfile"
)

var (
	buildFamily string
	buildShard  uint32
	buildInput  string
	buildRoot   string
)

var buildShardCmd = &cobra.Command{
	Use:   "build-shard",
	Short: "Build one shard file from a JSON-lines posting dump",
	Long: `build-shard accumulates postings from a JSON-lines input file into
one shard's Builder (spec §4.3), then seals it atomically (spec §4.2/§4.8).
The shard's (token_hash -> posting list) mapping only covers postings whose
routing key (token_hash mod N) equals --shard; the caller is expected to
have already partitioned the input, mirroring how the external
crawler/parser pipeline feeds each shard's builder in spec §1.`,
	RunE: runBuildShard,
}

func init() {
	buildShardCmd.Flags().StringVar(&buildFamily, "family", "main", "index family: main, url_link, or domain_link")
	buildShardCmd.Flags().Uint32Var(&buildShard, "shard", 0, "shard id to build")
	buildShardCmd.Flags().StringVar(&buildInput, "input", "", "JSON-lines posting dump (one record object per line)")
	buildShardCmd.Flags().StringVar(&buildRoot, "root", "", "index root directory (defaults to ALEX_INDEX_ROOT)")
	buildShardCmd.MarkFlagRequired("input")
}

// mainPostingLine is one line of a main-index posting dump.
type mainPostingLine struct {
	TokenHash    uint64  `json:"token_hash"`
	DocumentHash uint64  `json:"document_hash"`
	Score        float32 `json:"score"`
}

// linkPostingLine is one line of a url-link or domain-link posting dump.
type linkPostingLine struct {
	TokenHash    uint64  `json:"token_hash"`
	Value        uint64  `json:"value"`
	SourceHash   uint64  `json:"source_hash"`
	TargetHash   uint64  `json:"target_hash"`
	SourceDomain uint64  `json:"source_domain"`
	TargetDomain uint64  `json:"target_domain"`
	Score        float32 `json:"score"`
}

func runBuildShard(_ *cobra.Command, _ []string) error {
	logx.Configure()
	cfg := config.Load()
	root := buildRoot
	if root == "" {
		root = cfg.IndexRoot
	}

	dir := filepath.Join(root, buildFamily)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("build-shard: creating %s: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.idx", buildShard))

	f, err := os.Open(buildInput)
	if err != nil {
		return fmt.Errorf("build-shard: opening input %s: %w", buildInput, err)
	}
	defer f.Close()

	switch buildFamily {
	case "main":
		b := shardfile.NewBuilder(shardfile.MainCodec, buildShard, dir, cfg.PostingCap, cfg.BuildMemoryBudgetBytes)
		if err := scanMainPostings(f, b); err != nil {
			return err
		}
		if err := sealShard(buildFamily, path, b.Flush); err != nil {
			return err
		}
	case "url_link":
		b := shardfile.NewBuilder(shardfile.URLLinkCodec, buildShard, dir, cfg.PostingCap, cfg.BuildMemoryBudgetBytes)
		if err := scanLinkPostings(f, b); err != nil {
			return err
		}
		if err := sealShard(buildFamily, path, b.Flush); err != nil {
			return err
		}
	case "domain_link":
		b := shardfile.NewBuilder(shardfile.DomainLinkCodec, buildShard, dir, cfg.PostingCap, cfg.BuildMemoryBudgetBytes)
		if err := scanLinkPostings(f, b); err != nil {
			return err
		}
		if err := sealShard(buildFamily, path, b.Flush); err != nil {
			return err
		}
	default:
		return fmt.Errorf("build-shard: unknown family %q", buildFamily)
	}

	logx.Info("build-shard: sealed %s", path)
	return nil
}

// sealShard times flush (a Builder[R].Flush method) and records it under
// ShardBuildSeconds, labeled by index family.
func sealShard(family, path string, flush func(string) error) error {
	start := time.Now()
	err := flush(path)
	metrics.ShardBuildSeconds.WithLabelValues(family).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("build-shard: sealing %s: %w", path, err)
	}
	return nil
}

func scanMainPostings(f *os.File, b *shardfile.Builder[shardfile.MainRecord]) error {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec mainPostingLine
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("build-shard: parsing posting line: %w", err)
		}
		if err := b.Add(rec.TokenHash, shardfile.MainRecord{DocumentHash: rec.DocumentHash, Score: rec.Score}); err != nil {
			return fmt.Errorf("build-shard: adding posting: %w", err)
		}
	}
	return scanner.Err()
}

func scanLinkPostings(f *os.File, b *shardfile.Builder[shardfile.LinkRecord]) error {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec linkPostingLine
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("build-shard: parsing posting line: %w", err)
		}
		err := b.Add(rec.TokenHash, shardfile.LinkRecord{
			Value:        rec.Value,
			SourceHash:   rec.SourceHash,
			TargetHash:   rec.TargetHash,
			SourceDomain: rec.SourceDomain,
			TargetDomain: rec.TargetDomain,
			Score:        rec.Score,
		})
		if err != nil {
			return fmt.Errorf("build-shard: adding posting: %w", err)
		}
	}
	return scanner.Err()
}
