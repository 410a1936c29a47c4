package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/pptagent/config"
	"github.com/BaSui01/pptagent/internal/tlsutil"
	"github.com/BaSui01/pptagent/llm/tokenizer"
)

// tiktokenCacheEnv tiktoken-go 读取的编码缓存目录
const tiktokenCacheEnv = "TIKTOKEN_CACHE_DIR"

// =============================================================================
// 📥 download-files 命令
// =============================================================================

func runDownloadFiles(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("download-files", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	skipTokenizer := fs.Bool("skip-tokenizer", false, "Do not warm tokenizer encodings")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := newLoader(*configPath).Load()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, _ := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !*skipTokenizer && len(cfg.Assets.TokenizerModels) > 0 {
		if _, ok := os.LookupEnv(tiktokenCacheEnv); !ok && cfg.Assets.Dir != "" {
			cacheDir := filepath.Join(cfg.Assets.Dir, "tiktoken")
			if err := os.MkdirAll(cacheDir, 0o755); err == nil {
				_ = os.Setenv(tiktokenCacheEnv, cacheDir)
			}
		}
		encodings, err := tokenizer.Warm(cfg.Assets.TokenizerModels)
		if err != nil {
			logger.Error("tokenizer warm-up failed", zap.Error(err))
			return 1
		}
		logger.Info("tokenizer encodings ready", zap.Strings("encodings", encodings))
	}

	d := newAssetDownloader(cfg.Assets, tlsutil.SecureHTTPClient(0), logger)
	results, err := d.DownloadAll(ctx, cfg.Assets.Files)
	for _, r := range results {
		fmt.Fprintf(stdout, "%-8s %s\n", r.Status, r.Path)
	}
	if err != nil {
		logger.Error("download failed", zap.Error(err))
		return 1
	}
	return 0
}

// =============================================================================
// 📦 资源下载
// =============================================================================

// 下载结果状态
const (
	assetDownloaded = "fetched"
	assetCached     = "cached"
)

// ErrChecksumMismatch 下载内容与配置的 sha256 不一致
var ErrChecksumMismatch = errors.New("checksum mismatch")

// assetResult 单个文件的处理结果
type assetResult struct {
	Path   string
	Status string
	Bytes  int64
}

// assetDownloader 并发下载 assets.files，写入临时文件校验后再原子替换
type assetDownloader struct {
	client      *http.Client
	dir         string
	concurrency int
	timeout     time.Duration
	logger      *zap.Logger
}

func newAssetDownloader(cfg config.AssetsConfig, client *http.Client, logger *zap.Logger) *assetDownloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		client = http.DefaultClient
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &assetDownloader{
		client:      client,
		dir:         cfg.Dir,
		concurrency: concurrency,
		timeout:     cfg.Timeout,
		logger:      logger.With(zap.String("component", "downloader")),
	}
}

// DownloadAll 下载全部文件，返回与 files 同序的结果。任一文件失败时取消其余下载
func (d *assetDownloader) DownloadAll(ctx context.Context, files []config.AssetFile) ([]assetResult, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create assets dir: %w", err)
	}

	results := make([]assetResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for i, f := range files {
		g.Go(func() error {
			res, err := d.download(gctx, f)
			if err != nil {
				return fmt.Errorf("%s: %w", f.URL, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return compactResults(results), err
	}
	return results, nil
}

func (d *assetDownloader) download(ctx context.Context, f config.AssetFile) (assetResult, error) {
	dest, err := d.destination(f)
	if err != nil {
		return assetResult{}, err
	}
	want := strings.ToLower(strings.TrimSpace(f.SHA256))

	// 已存在且校验通过时跳过
	if want != "" {
		if sum, size, err := fileSHA256(dest); err == nil && sum == want {
			return assetResult{Path: dest, Status: assetCached, Bytes: size}, nil
		}
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return assetResult{}, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return assetResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return assetResult{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return assetResult{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return assetResult{}, err
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return assetResult{}, err
	}

	if got := hex.EncodeToString(h.Sum(nil)); want != "" && got != want {
		return assetResult{}, fmt.Errorf("%w: want %s, got %s", ErrChecksumMismatch, want, got)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return assetResult{}, err
	}

	d.logger.Info("asset downloaded", zap.String("path", dest), zap.Int64("bytes", n))
	return assetResult{Path: dest, Status: assetDownloaded, Bytes: n}, nil
}

// destination 计算目标路径。未配置 path 时取 URL 的文件名，不允许逃出下载目录
func (d *assetDownloader) destination(f config.AssetFile) (string, error) {
	name := f.Path
	if name == "" {
		u, err := url.Parse(f.URL)
		if err != nil {
			return "", fmt.Errorf("invalid url: %w", err)
		}
		name = path.Base(u.Path)
	}
	name = filepath.FromSlash(name)
	if name == "" || name == "." || name == string(filepath.Separator) || !filepath.IsLocal(name) {
		return "", fmt.Errorf("invalid asset path %q", f.Path)
	}
	return filepath.Join(d.dir, name), nil
}

func fileSHA256(p string) (string, int64, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func compactResults(results []assetResult) []assetResult {
	out := results[:0]
	for _, r := range results {
		if r.Path != "" {
			out = append(out, r)
		}
	}
	return out
}
