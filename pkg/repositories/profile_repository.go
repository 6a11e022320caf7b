package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-quality/pkg/database"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

// ProfileRepository provides data access for the per-column profile history.
type ProfileRepository interface {
	Create(ctx context.Context, profile *models.Profile) error
	// ListByColumn returns up to limit profiles, newest first. limit <= 0 means all.
	ListByColumn(ctx context.Context, tableID, columnID uuid.UUID, limit int) ([]*models.Profile, error)
	// GetPrevious returns the second-most-recent profile, or nil when fewer than two exist.
	GetPrevious(ctx context.Context, tableID, columnID uuid.UUID) (*models.Profile, error)
}

type profileRepository struct{}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository() ProfileRepository {
	return &profileRepository{}
}

var _ ProfileRepository = (*profileRepository)(nil)

const profileColumns = `
	id, table_id, column_id, profile_timestamp, row_count, null_count, null_percentage,
	unique_count, unique_percentage, min_value, max_value, mean_value, median_value,
	std_dev, sample_values, histogram_bins, data_type, profile_data`

func (r *profileRepository) Create(ctx context.Context, profile *models.Profile) error {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO dq_profiles (
			table_id, column_id, profile_timestamp, row_count, null_count, null_percentage,
			unique_count, unique_percentage, min_value, max_value, mean_value, median_value,
			std_dev, sample_values, histogram_bins, data_type, profile_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`

	var histogram any
	if profile.Histogram != nil {
		histogram = profile.Histogram
	}

	err = conn.QueryRow(ctx, query,
		profile.TableID,
		profile.ColumnID,
		profile.ProfileTimestamp,
		profile.RowCount,
		profile.NullCount,
		profile.NullPercentage,
		profile.UniqueCount,
		profile.UniquePercentage,
		profile.MinValue,
		profile.MaxValue,
		profile.MeanValue,
		profile.MedianValue,
		profile.StdDev,
		jsonbValue(profile.SampleValues),
		histogram,
		string(profile.DataType),
		jsonbValue(profile.ProfileData),
	).Scan(&profile.ID)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	return nil
}

func (r *profileRepository) ListByColumn(ctx context.Context, tableID, columnID uuid.UUID, limit int) ([]*models.Profile, error) {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + profileColumns + `
		FROM dq_profiles
		WHERE table_id = $1 AND column_id = $2
		ORDER BY profile_timestamp DESC, id
		LIMIT NULLIF($3, 0)`

	if limit < 0 {
		limit = 0
	}
	rows, err := conn.Query(ctx, query, tableID, columnID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}

	return profiles, nil
}

func (r *profileRepository) GetPrevious(ctx context.Context, tableID, columnID uuid.UUID) (*models.Profile, error) {
	conn, err := database.MustScope(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + profileColumns + `
		FROM dq_profiles
		WHERE table_id = $1 AND column_id = $2
		ORDER BY profile_timestamp DESC, id
		OFFSET 1 LIMIT 1`

	p, err := scanProfile(conn.QueryRow(ctx, query, tableID, columnID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var p models.Profile
	var dataType string
	var samples, histogram, profileData []byte

	err := row.Scan(
		&p.ID,
		&p.TableID,
		&p.ColumnID,
		&p.ProfileTimestamp,
		&p.RowCount,
		&p.NullCount,
		&p.NullPercentage,
		&p.UniqueCount,
		&p.UniquePercentage,
		&p.MinValue,
		&p.MaxValue,
		&p.MeanValue,
		&p.MedianValue,
		&p.StdDev,
		&samples,
		&histogram,
		&dataType,
		&profileData,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}

	p.DataType = models.DataType(dataType)
	if err := jsonUnmarshal(samples, &p.SampleValues); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sample_values: %w", err)
	}
	if len(histogram) > 0 && string(histogram) != "null" {
		p.Histogram = &models.Histogram{}
		if err := jsonUnmarshal(histogram, p.Histogram); err != nil {
			return nil, fmt.Errorf("failed to unmarshal histogram_bins: %w", err)
		}
	}
	if err := jsonUnmarshal(profileData, &p.ProfileData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile_data: %w", err)
	}

	return &p, nil
}
