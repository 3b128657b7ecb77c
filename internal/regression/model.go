// Package regression implements the small models behind yield prediction and
// factor impact: a standard scaler, ordinary least squares and a random
// forest of CART regression trees.
package regression

import (
	"context"
	"fmt"
)

// ModelType names a regressor family.
type ModelType string

const (
	ModelTypeLinear ModelType = "linear_regression"
	ModelTypeForest ModelType = "random_forest"
)

// Regressor predicts a target from one feature row.
type Regressor interface {
	Predict(x []float64) float64
}

// Trainer fits one kind of regressor.
type Trainer interface {
	Fit(ctx context.Context, X [][]float64, y []float64) (Regressor, error)
	Type() ModelType
}

type linearTrainer struct{}

func (linearTrainer) Fit(_ context.Context, X [][]float64, y []float64) (Regressor, error) {
	m, err := FitOLS(X, y)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (linearTrainer) Type() ModelType { return ModelTypeLinear }

type forestTrainer struct {
	opts ForestOptions
}

func (t forestTrainer) Fit(ctx context.Context, X [][]float64, y []float64) (Regressor, error) {
	f, err := FitForest(ctx, X, y, t.opts)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (forestTrainer) Type() ModelType { return ModelTypeForest }

// TrainerFactory creates trainers for different model types
type TrainerFactory struct {
	trainers map[ModelType]Trainer
}

// NewTrainerFactory registers the linear and forest trainers.
func NewTrainerFactory(forest ForestOptions) *TrainerFactory {
	return &TrainerFactory{
		trainers: map[ModelType]Trainer{
			ModelTypeLinear: linearTrainer{},
			ModelTypeForest: forestTrainer{opts: forest},
		},
	}
}

// GetTrainer returns the trainer for a model type.
func (f *TrainerFactory) GetTrainer(modelType ModelType) (Trainer, error) {
	trainer, ok := f.trainers[modelType]
	if !ok {
		return nil, fmt.Errorf("no trainer available for model type: %s", modelType)
	}
	return trainer, nil
}

// ScaledModel is a fitted regressor together with the scaler fitted on its
// training rows. Inputs are scaled identically on every prediction.
type ScaledModel struct {
	Type   ModelType
	Scaler *StandardScaler
	Model  Regressor
	Rows   int
}

// Train standard-scales X and fits trainer on the scaled rows.
func Train(ctx context.Context, trainer Trainer, X [][]float64, y []float64) (*ScaledModel, error) {
	scaler, err := FitScaler(X)
	if err != nil {
		return nil, err
	}
	model, err := trainer.Fit(ctx, scaler.TransformAll(X), y)
	if err != nil {
		return nil, err
	}
	return &ScaledModel{
		Type:   trainer.Type(),
		Scaler: scaler,
		Model:  model,
		Rows:   len(X),
	}, nil
}

// Predict scales x and evaluates the model.
func (m *ScaledModel) Predict(x []float64) float64 {
	return m.Model.Predict(m.Scaler.Transform(x))
}
