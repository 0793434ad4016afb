package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/subcommands"

	"github.com/pieberrykinnie/neuralnet-breast-cancer/nnet"
)

type InferCommand struct {
	weightsFile string
	dataFile    string
}

var _ subcommands.Command = (*InferCommand)(nil)

func (*InferCommand) Name() string {
	return "infer"
}

func (*InferCommand) Synopsis() string {
	return "Predict classes for a dataset using saved weights"
}

func (*InferCommand) Usage() string {
	return ``
}

func (c *InferCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.weightsFile, "weights", "tumor.safetensors", "Path to the weights produced by the train command")
	f.StringVar(&c.dataFile, "data-file", "", "Path to the dataset to predict")
}

func (c *InferCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.executeErr(ctx); err != nil {
		log.Printf("Error: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *InferCommand) executeErr(ctx context.Context) error {
	model, err := loadModelFile(c.weightsFile)
	if err != nil {
		return err
	}

	data, err := loadDataset(c.dataFile)
	if err != nil {
		return fmt.Errorf("while loading dataset: %w", err)
	}

	pred, err := model.Predict(data)
	if err != nil {
		return fmt.Errorf("while predicting: %w", err)
	}

	for k := range pred {
		fmt.Printf("%d\t%f\t%f\t%s\n", k,
			pred[k][nnet.ClassBenign], pred[k][nnet.ClassMalignant], className(pred.Class(k)))
	}
	return nil
}

type EvaluateCommand struct {
	weightsFile string
	dataFile    string
}

var _ subcommands.Command = (*EvaluateCommand)(nil)

func (*EvaluateCommand) Name() string {
	return "evaluate"
}

func (*EvaluateCommand) Synopsis() string {
	return "Score saved weights against a labeled dataset"
}

func (*EvaluateCommand) Usage() string {
	return ``
}

func (c *EvaluateCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.weightsFile, "weights", "tumor.safetensors", "Path to the weights produced by the train command")
	f.StringVar(&c.dataFile, "data-file", "", "Path to the labeled dataset to score against")
}

func (c *EvaluateCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.executeErr(ctx); err != nil {
		log.Printf("Error: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *EvaluateCommand) executeErr(ctx context.Context) error {
	model, err := loadModelFile(c.weightsFile)
	if err != nil {
		return err
	}

	data, err := loadDataset(c.dataFile)
	if err != nil {
		return fmt.Errorf("while loading dataset: %w", err)
	}

	pred, err := model.Predict(data)
	if err != nil {
		return fmt.Errorf("while predicting: %w", err)
	}
	table, acc, err := nnet.Evaluate(pred, data.Labels())
	if err != nil {
		return fmt.Errorf("while evaluating: %w", err)
	}

	log.Printf("accuracy: %.4f over %d samples", acc, table.Total)
	printConfusionTable(table)
	if class, collapsed := table.Collapsed(); collapsed {
		log.Printf("WARNING: model collapsed, predicting %s for every sample", className(class))
	}
	return nil
}

func loadModelFile(path string) (*nnet.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("while opening weights file: %w", err)
	}
	defer f.Close()

	model, err := nnet.LoadModel(f)
	if err != nil {
		return nil, fmt.Errorf("while reading weight tensors: %w", err)
	}
	return model, nil
}
