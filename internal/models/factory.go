package models

import (
	"fmt"
)

// ModelConfig selects and parameterizes a backend. Zero values fall back to
// the defaults of DefaultConfig.
type ModelConfig struct {
	Name         string  `yaml:"name"`
	Algorithm    string  `yaml:"algorithm"`
	Task         Task    `yaml:"task"`
	K            int     `yaml:"k"`
	Distance     string  `yaml:"distance"`
	MaxDepth     int     `yaml:"max_depth"`
	MinSplit     int     `yaml:"min_split"`
	NTrees       int     `yaml:"n_trees"`
	VarSmoothing float64 `yaml:"var_smoothing"`
	LearningRate float64 `yaml:"learning_rate"`
	MaxIter      int     `yaml:"max_iter"`
	C            float64 `yaml:"c"`
	Seed         int64   `yaml:"seed"`
	MaxWorkers   int     `yaml:"max_workers"`
}

// Algorithms lists the backends known to CreateModel.
var Algorithms = []string{"logistic", "bayes", "tree", "forest", "boosting", "linear", "knn"}

// Label is the display name of the configured backend.
func (c ModelConfig) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Algorithm
}

func CreateModel(config ModelConfig) (Model, error) {
	task, err := ParseTask(string(config.Task))
	if err != nil {
		return nil, err
	}
	config = config.withDefaults()

	var model Model
	switch config.Algorithm {
	case "knn":
		if task == Regression {
			model = NewKNNRegressor(config.K, config.Distance)
		} else {
			model = NewKNN(config.K, config.Distance)
		}

	case "tree":
		if task == Regression {
			model = NewDecisionTreeRegressor(config.MaxDepth, config.MinSplit)
		} else {
			model = NewDecisionTree(config.MaxDepth, config.MinSplit)
		}

	case "forest":
		var rf *RandomForest
		if task == Regression {
			rf = NewRandomForestRegressor(config.NTrees, config.MaxDepth, config.MinSplit, config.Seed)
		} else {
			rf = NewRandomForest(config.NTrees, config.MaxDepth, config.MinSplit, config.Seed)
		}
		if config.MaxWorkers > 0 {
			rf.MaxWorkers = config.MaxWorkers
		}
		model = rf

	case "boosting":
		if task == Regression {
			model = NewGradientBoostingRegressor(config.NTrees, config.LearningRate, config.MaxDepth)
		} else {
			model = NewGradientBoosting(config.NTrees, config.LearningRate, config.MaxDepth)
		}

	case "bayes":
		if task != Classification {
			return nil, fmt.Errorf("algorithm %s supports classification only", config.Algorithm)
		}
		model = NewNaiveBayes(config.VarSmoothing)

	case "logistic":
		if task != Classification {
			return nil, fmt.Errorf("algorithm %s supports classification only", config.Algorithm)
		}
		model = NewLogisticRegression(config.C, config.LearningRate, config.MaxIter)

	case "linear":
		if task != Regression {
			return nil, fmt.Errorf("algorithm %s supports regression only", config.Algorithm)
		}
		model = NewLinearRegression()

	default:
		return nil, fmt.Errorf("unknown algorithm: %s", config.Algorithm)
	}

	if config.Name != "" {
		if named, ok := model.(interface{ SetName(string) }); ok {
			named.SetName(config.Name)
		}
	}
	return model, nil
}

func (c ModelConfig) withDefaults() ModelConfig {
	d := DefaultConfig(c.Algorithm)
	if c.K <= 0 {
		c.K = d.K
	}
	if c.Distance == "" {
		c.Distance = d.Distance
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = d.MaxDepth
	}
	if c.MinSplit <= 0 {
		c.MinSplit = d.MinSplit
	}
	if c.NTrees <= 0 {
		c.NTrees = d.NTrees
	}
	if c.VarSmoothing <= 0 {
		c.VarSmoothing = d.VarSmoothing
	}
	if c.LearningRate <= 0 {
		c.LearningRate = d.LearningRate
	}
	if c.MaxIter <= 0 {
		c.MaxIter = d.MaxIter
	}
	if c.C <= 0 {
		c.C = d.C
	}
	return c
}

func DefaultConfig(algorithm string) ModelConfig {
	config := ModelConfig{Algorithm: algorithm, Seed: 42}

	switch algorithm {
	case "knn":
		config.K = 5
		config.Distance = "euclidean"
	case "tree":
		config.MaxDepth = 10
		config.MinSplit = 2
	case "forest":
		config.NTrees = 100
		config.MaxDepth = 10
		config.MinSplit = 2
		config.MaxWorkers = 4
	case "boosting":
		config.NTrees = 300
		config.LearningRate = 0.05
		config.MaxDepth = 3
		config.MinSplit = 2
	case "bayes":
		config.VarSmoothing = 1e-9
	case "logistic":
		config.C = 1
		config.LearningRate = 0.1
		config.MaxIter = 1000
	}

	return config
}
