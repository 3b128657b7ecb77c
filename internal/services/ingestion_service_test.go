package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"agri-yield-platform/internal/models"
)

// --- Mock CropRepository ---
type MockCropRepository struct {
	mock.Mock
}

func (m *MockCropRepository) EnsureSchema(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockCropRepository) DropSchema(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockCropRepository) InsertBatch(ctx context.Context, records []models.Record) error {
	return m.Called(ctx, records).Error(0)
}

func (m *MockCropRepository) ListRecords(ctx context.Context) ([]models.Record, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Record), args.Error(1)
}

func (m *MockCropRepository) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockCropRepository) Truncate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockCropRepository) HealthCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

const ingestCSV = `Year,Agro-Climatic Zone,Crop,Soil Type,Season,Rainfall (mm),Irrigation (%),Fertilizer (kg/ha),Yield (tonnes/ha)
2020,North,Rice,Alluvial,Kharif,900,60,150,3.1
2020,North,Rice,Alluvial,Rabi,910,61,149,2.9
2021,North,Wheat,Black,Kharif,,55,140,2.5
2021,South,Rice,Red,Zaid,700,40,120,3.3
2022,South,Wheat,Red,Kharif,720,42,118,2.2
`

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "yield.csv")
	require.NoError(t, os.WriteFile(path, []byte(ingestCSV), 0o644))
	return path
}

func batchOf(n int) interface{} {
	return mock.MatchedBy(func(records []models.Record) bool { return len(records) == n })
}

func TestIngestionService_IngestCSV(t *testing.T) {
	t.Run("batches valid rows", func(t *testing.T) {
		repo := new(MockCropRepository)
		repo.On("InsertBatch", mock.Anything, batchOf(3)).Return(nil).Once()
		repo.On("InsertBatch", mock.Anything, batchOf(1)).Return(nil).Once()

		logger, m := testDeps(t)
		svc := NewIngestionService(repo, logger, m)

		result, err := svc.IngestCSV(context.Background(), writeCSV(t), 3, false)
		require.NoError(t, err)

		assert.Equal(t, 5, result.TotalRecords)
		assert.Equal(t, 4, result.SuccessfulRecords)
		assert.Equal(t, 1, result.FailedRecords)
		assert.Equal(t, 2, result.Batches)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestionErrorsTotal.WithLabelValues("conversion_error")))
		repo.AssertExpectations(t)
		repo.AssertNotCalled(t, "Truncate", mock.Anything)
	})

	t.Run("replace truncates first", func(t *testing.T) {
		repo := new(MockCropRepository)
		repo.On("Truncate", mock.Anything).Return(nil).Once()
		repo.On("InsertBatch", mock.Anything, batchOf(4)).Return(nil).Once()

		logger, m := testDeps(t)
		svc := NewIngestionService(repo, logger, m)

		result, err := svc.IngestCSV(context.Background(), writeCSV(t), 0, true)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Batches)
		repo.AssertExpectations(t)
	})

	t.Run("missing file", func(t *testing.T) {
		repo := new(MockCropRepository)
		logger, m := testDeps(t)
		svc := NewIngestionService(repo, logger, m)

		_, err := svc.IngestCSV(context.Background(), filepath.Join(t.TempDir(), "none.csv"), 10, false)
		var dle *models.DataLoadError
		require.True(t, errors.As(err, &dle))
		repo.AssertNotCalled(t, "InsertBatch", mock.Anything, mock.Anything)
	})

	t.Run("insert failure", func(t *testing.T) {
		repo := new(MockCropRepository)
		repo.On("InsertBatch", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()

		logger, m := testDeps(t)
		svc := NewIngestionService(repo, logger, m)

		_, err := svc.IngestCSV(context.Background(), writeCSV(t), 2, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestionErrorsTotal.WithLabelValues("insert_error")))
		repo.AssertExpectations(t)
	})
}

func TestIngestionService_IngestRecords(t *testing.T) {
	repo := new(MockCropRepository)
	repo.On("InsertBatch", mock.Anything, batchOf(4)).Return(nil).Times(2)
	repo.On("InsertBatch", mock.Anything, batchOf(2)).Return(nil).Once()

	logger, m := testDeps(t)
	svc := NewIngestionService(repo, logger, m)

	result, err := svc.IngestRecords(context.Background(), syntheticRows("North", "Rice", 10, 0, 0), 4)
	require.NoError(t, err)
	assert.Equal(t, 10, result.SuccessfulRecords)
	assert.Equal(t, 3, result.Batches)
	repo.AssertExpectations(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.IngestRecords(ctx, syntheticRows("North", "Rice", 3, 0, 0), 4)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIngestionService_Reset(t *testing.T) {
	repo := new(MockCropRepository)
	repo.On("Truncate", mock.Anything).Return(errors.New("locked")).Twice()

	logger, m := testDeps(t)
	svc := NewIngestionService(repo, logger, m)

	err := svc.Reset(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to clear existing records")

	_, err = svc.IngestCSV(context.Background(), writeCSV(t), 10, true)
	require.Error(t, err)
	repo.AssertNotCalled(t, "InsertBatch", mock.Anything, mock.Anything)
}
