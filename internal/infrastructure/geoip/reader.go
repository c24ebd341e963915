package geoip

import (
	"fmt"
	"net"

	domainRepo "github.com/jihun-01/scratcha-backend/internal/domain/repository"
	"github.com/oschwald/maxminddb-golang"
	"go.uber.org/zap"
)

// UnknownDatabaseTypeError 국가 조회를 지원하지 않는 데이터베이스를 열었을 때 반환됩니다.
type UnknownDatabaseTypeError struct {
	DatabaseType string
}

func (e UnknownDatabaseTypeError) Error() string {
	return fmt.Sprintf("geoip: %q database does not carry country data", e.DatabaseType)
}

// countryRecord GeoIP2/GeoLite2 Country·City 레코드 중 필요한 필드만 디코딩합니다.
type countryRecord struct {
	Country struct {
		IsoCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	RegisteredCountry struct {
		IsoCode string `maxminddb:"iso_code"`
	} `maxminddb:"registered_country"`
}

// Reader 클라이언트 IP 를 ISO 국가 코드로 변환합니다.
type Reader struct {
	mmdb   *maxminddb.Reader
	logger *zap.Logger
}

var _ domainRepo.GeoLocator = (*Reader)(nil)

// Open 파일을 메모리 맵으로 엽니다. 사용 후 Close 로 해제해야 합니다.
func Open(path string, logger *zap.Logger) (*Reader, error) {
	mmdb, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	return newReader(mmdb, logger)
}

// FromBytes 메모리에 올라온 데이터베이스로 Reader 를 만듭니다.
func FromBytes(b []byte, logger *zap.Logger) (*Reader, error) {
	mmdb, err := maxminddb.FromBytes(b)
	if err != nil {
		return nil, err
	}
	return newReader(mmdb, logger)
}

func newReader(mmdb *maxminddb.Reader, logger *zap.Logger) (*Reader, error) {
	if !hasCountry(mmdb.Metadata.DatabaseType) {
		_ = mmdb.Close()
		return nil, UnknownDatabaseTypeError{mmdb.Metadata.DatabaseType}
	}
	return &Reader{mmdb: mmdb, logger: logger}, nil
}

func hasCountry(dbType string) bool {
	switch dbType {
	case "DBIP-City-Lite",
		"DBIP-Country-Lite",
		"DBIP-Country",
		"DBIP-Location (compat=City)",
		"DBIP-ISP (compat=Enterprise)",
		"DBIP-Location-ISP (compat=Enterprise)",
		"GeoLite2-City",
		"GeoLite2-Country",
		"GeoIP2-City",
		"GeoIP2-City-Africa",
		"GeoIP2-City-Asia-Pacific",
		"GeoIP2-City-Europe",
		"GeoIP2-City-North-America",
		"GeoIP2-City-South-America",
		"GeoIP2-Precision-City",
		"GeoIP2-Country",
		"GeoIP2-Enterprise":
		return true
	default:
		return false
	}
}

// Country ip 의 국가 코드를 반환합니다. 파싱 실패나 미등록 대역이면 false.
func (r *Reader) Country(ip string) (string, bool) {
	parsed := net.ParseIP(ip)
	if parsed == nil || r == nil || r.mmdb == nil {
		return "", false
	}

	var rec countryRecord
	if err := r.mmdb.Lookup(parsed, &rec); err != nil {
		r.logger.Debug("GeoIP lookup failed", zap.String("ip", ip), zap.Error(err))
		return "", false
	}

	code := rec.Country.IsoCode
	if code == "" {
		code = rec.RegisteredCountry.IsoCode
	}
	return code, code != ""
}

// Close 데이터베이스 파일을 해제합니다.
func (r *Reader) Close() error {
	if r == nil || r.mmdb == nil {
		return nil
	}
	return r.mmdb.Close()
}

// Disabled GeoIP 데이터베이스가 설정되지 않았을 때 사용하는 Locator
type Disabled struct{}

func (Disabled) Country(string) (string, bool) { return "", false }
