// Command replay re-submits an archived telemetry session to a running
// captcha API and prints the verdict.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jihun-01/scratcha-backend/internal/config"
	"github.com/jihun-01/scratcha-backend/internal/infrastructure/storage/archive"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	var (
		dataType = pflag.String("type", "", "데이터 타입 (human 또는 bot)")
		prefix   = pflag.String("prefix", "", "S3 키 접두사 (기본값: <type>_data)")
		baseURL  = pflag.String("base-url", "http://localhost:8001", "캡챠 API 주소")
		apiKey   = pflag.String("api-key", os.Getenv("CAPTCHA_API_KEY"), "X-Api-Key 값")
		interval = pflag.Duration("interval", 2*time.Second, "결과 폴링 간격")
		retries  = pflag.Int("retries", 30, "결과 폴링 최대 횟수")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: replay [flags] <object-name>\n  예: replay --type human 20250908-092649_yaz5q1pdlm.json.gz\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if pflag.NArg() != 1 || (*dataType != "human" && *dataType != "bot") || *apiKey == "" {
		pflag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "설정 로드 실패: %v\n", err)
		os.Exit(1)
	}
	log := cfg.Logger
	defer log.Sync()

	keyPrefix := *prefix
	if keyPrefix == "" {
		keyPrefix = *dataType + "_data"
	}
	key := keyPrefix + "/" + pflag.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*retries+1)*(*interval)+time.Minute)
	defer cancel()

	client, err := archive.NewS3Client(ctx, cfg.Archive)
	if err != nil {
		log.Fatal("S3 클라이언트 생성 실패", zap.Error(err))
	}

	r := &replayer{
		objects:  client,
		bucket:   cfg.Archive.Bucket,
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  *baseURL,
		apiKey:   *apiKey,
		interval: *interval,
		retries:  *retries,
		logger:   log,
	}

	log.Info("세션 리플레이 시작", zap.String("bucket", cfg.Archive.Bucket), zap.String("key", key))
	result, err := r.Run(ctx, key)
	if err != nil {
		log.Fatal("리플레이 실패", zap.String("key", key), zap.Error(err))
	}
	fmt.Println(string(result))
}
