package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopavnu/avnu-marketplace-sub008/catalog"
)

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}

	return data
}

// LoadFixtureJSON loads JSON test data from a fixture file and unmarshals it.
func LoadFixtureJSON(t *testing.T, path string, dest any) {
	t.Helper()

	data := LoadFixture(t, path)
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// LoadProducts reads a JSON array of products from path.
func LoadProducts(t *testing.T, path string) []*catalog.Product {
	t.Helper()

	var products []*catalog.Product
	LoadFixtureJSON(t, path, &products)
	return products
}

// WriteGolden writes test output to a golden file, creating parent
// directories as needed.
func WriteGolden(t *testing.T, path string, data []byte) {
	t.Helper()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create directory %s: %v", dir, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write golden file to %s: %v", path, err)
	}
}

// CompareWithGolden compares actual data with expected data from a golden file.
// If the golden file doesn't exist, it creates one with the actual data.
func CompareWithGolden(t *testing.T, path string, actual []byte) {
	t.Helper()

	expected, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			t.Logf("Golden file %s does not exist, creating it", path)
			WriteGolden(t, path, actual)
			return
		}
		t.Fatalf("failed to read golden file %s: %v", path, err)
	}

	if string(actual) != string(expected) {
		t.Errorf("output mismatch for %s:\nExpected:\n%s\nActual:\n%s", path, expected, actual)
	}
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// GoldenPath constructs a path to a golden file relative to the testdata directory.
func GoldenPath(filename string) string {
	return filepath.Join("testdata", "golden", filename)
}

// SampleProducts returns a small catalog spread over two merchants and a
// handful of categories.
func SampleProducts() []*catalog.Product {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []*catalog.Product{
		{
			ID: "p1", MerchantID: "m1", Title: "Walnut desk lamp", Price: 89,
			Categories: []string{"home"}, InStock: true, IsActive: true, Featured: true,
			CreatedAt: created, UpdatedAt: created,
		},
		{
			ID: "p2", MerchantID: "m1", Title: "Linen throw", Price: 45.5,
			Categories: []string{"home", "textiles"}, InStock: true, IsActive: true,
			CreatedAt: created.Add(time.Hour), UpdatedAt: created.Add(time.Hour),
		},
		{
			ID: "p3", MerchantID: "m2", Title: "Merino crew", BrandName: "Field", Price: 120,
			Categories: []string{"clothing"}, Values: []string{"sustainable"}, InStock: false, IsActive: true,
			CreatedAt: created.Add(2 * time.Hour), UpdatedAt: created.Add(2 * time.Hour),
		},
		{
			ID: "p4", MerchantID: "m2", Title: "Face oil", Price: 32,
			Categories: []string{"beauty"}, Values: []string{"vegan", "cruelty-free"}, InStock: true, IsActive: true,
			CreatedAt: created.Add(3 * time.Hour), UpdatedAt: created.Add(3 * time.Hour),
		},
	}
}
