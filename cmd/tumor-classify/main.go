// Command tumor-classify trains a feedforward network that classifies
// tumor samples as benign or malignant from 30 cell-nucleus measurements.
//
// To train: `go run ./cmd/tumor-classify train --data-file=wdbc.csv --hidden=5,3 --rep=5`
//
// To evaluate saved weights: `go run ./cmd/tumor-classify evaluate --weights=tumor.safetensors --data-file=wdbc.csv`
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"

	"github.com/google/subcommands"

	"github.com/pieberrykinnie/neuralnet-breast-cancer/nnet"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	subcommands.Register(&TrainCommand{}, "")
	subcommands.Register(&InferCommand{}, "")
	subcommands.Register(&EvaluateCommand{}, "")

	flag.Parse()
	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}

type TrainCommand struct {
	dataFile         string
	outputWeightFile string

	hidden       string
	algorithm    string
	activation   string
	errFunc      string
	linearOutput bool
	threshold    float64
	stepLimit    int
	learningRate float64
	likelihood   bool

	repetitions int
	seed        int64
	trainFrac   float64
}

var _ subcommands.Command = (*TrainCommand)(nil)

func (*TrainCommand) Name() string {
	return "train"
}

func (*TrainCommand) Synopsis() string {
	return "Train the model and save the best repetition's weights"
}

func (*TrainCommand) Usage() string {
	return ``
}

func (c *TrainCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.dataFile, "data-file", "wdbc.csv", "Path to the dataset (.csv in WDBC layout, or .npz with x/y arrays)")
	f.StringVar(&c.outputWeightFile, "output-weight-file", "tumor.safetensors", "Path to save the best repetition's weights (safetensors format)")

	f.StringVar(&c.hidden, "hidden", "5,3", "Comma-separated hidden layer widths, empty for none")
	f.StringVar(&c.algorithm, "algorithm", "rprop+", "Weight-update strategy: rprop+, rprop- or backprop")
	f.StringVar(&c.activation, "activation", "logistic", "Activation function: logistic or tanh")
	f.StringVar(&c.errFunc, "error-function", "sse", "Error function: sse or ce")
	f.BoolVar(&c.linearOutput, "linear-output", false, "Leave the output layer pre-activations unactivated")
	f.Float64Var(&c.threshold, "threshold", 0.01, "Convergence threshold on the maximum absolute partial derivative")
	f.IntVar(&c.stepLimit, "step-limit", 100000, "Maximum number of update steps per repetition")
	f.Float64Var(&c.learningRate, "learning-rate", 0.01, "Fixed learning rate (backprop strategy only)")
	f.BoolVar(&c.likelihood, "likelihood", false, "Compute AIC/BIC (requires --error-function=ce)")

	f.IntVar(&c.repetitions, "rep", 5, "Number of independent training repetitions")
	f.Int64Var(&c.seed, "seed", 1, "Random seed for the train/validation split and weight initialization")
	f.Float64Var(&c.trainFrac, "train-frac", 0.8, "Fraction of samples assigned to the training subset")
}

func (c *TrainCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.executeErr(ctx); err != nil {
		log.Printf("Error: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *TrainCommand) executeErr(ctx context.Context) error {
	data, err := loadDataset(c.dataFile)
	if err != nil {
		return fmt.Errorf("while loading dataset: %w", err)
	}
	log.Printf("Loaded %d samples with %d features", data.Len(), data.Dim())

	cfg := nnet.DefaultConfig()
	cfg.Threshold = float32(c.threshold)
	cfg.StepLimit = c.stepLimit
	cfg.LearningRate = float32(c.learningRate)
	cfg.LinearOutput = c.linearOutput
	cfg.ComputeLikelihoodCriteria = c.likelihood
	if cfg.Strategy, err = parseStrategy(c.algorithm); err != nil {
		return err
	}
	if cfg.Activation, err = parseActivation(c.activation); err != nil {
		return err
	}
	if cfg.ErrorFunc, err = parseErrorFunc(c.errFunc); err != nil {
		return err
	}

	hidden, err := parseHidden(c.hidden)
	if err != nil {
		return err
	}
	topo := nnet.NewTopology(data.Dim(), hidden...)

	splitRng := rand.New(rand.NewSource(c.seed))
	train, valid := data.Split(splitRng, c.trainFrac)
	if train.Len() == 0 || valid.Len() == 0 {
		return fmt.Errorf("split produced an empty subset (train=%d valid=%d); adjust --train-frac", train.Len(), valid.Len())
	}
	log.Printf("Split into %d training and %d validation samples", train.Len(), valid.Len())

	result, err := nnet.Train(ctx, train, topo, cfg, c.repetitions, c.seed)
	if err != nil {
		return fmt.Errorf("while training: %w", err)
	}

	for _, rep := range result.Repetitions {
		line := fmt.Sprintf("rep %d: steps=%d error=%f reason=%s", rep.Index, rep.Steps, rep.FinalError, rep.Reason)
		if rep.HasCriteria {
			line += fmt.Sprintf(" aic=%.2f bic=%.2f", rep.AIC, rep.BIC)
		}
		if !rep.Failed() {
			pred, err := rep.Model.Predict(valid)
			if err != nil {
				return fmt.Errorf("while predicting validation set: %w", err)
			}
			_, acc, err := nnet.Evaluate(pred, valid.Labels())
			if err != nil {
				return fmt.Errorf("while evaluating repetition %d: %w", rep.Index, err)
			}
			line += fmt.Sprintf(" valid-acc=%.4f", acc)
		}
		log.Print(line)
	}

	best, table, err := nnet.BestRepetition(result, valid)
	if err != nil {
		return fmt.Errorf("while selecting the best repetition: %w", err)
	}
	log.Printf("Best repetition: %d (validation accuracy %.4f)", best.Index, table.Accuracy())
	printConfusionTable(table)
	if class, collapsed := table.Collapsed(); collapsed {
		log.Printf("WARNING: model collapsed, predicting %s for every sample", className(class))
	}

	f, err := os.Create(c.outputWeightFile)
	if err != nil {
		return fmt.Errorf("while creating weight file: %w", err)
	}
	defer f.Close()
	if err := nnet.SaveModel(f, best.Model); err != nil {
		return fmt.Errorf("while writing weight tensors: %w", err)
	}
	log.Printf("Saved best weights to %s", c.outputWeightFile)

	return nil
}

func printConfusionTable(ct nnet.ConfusionTable) {
	log.Printf("confusion (actual x predicted):")
	log.Printf("%10s %8s %10s", "", "benign", "malignant")
	for actual := 0; actual < nnet.NumClasses; actual++ {
		log.Printf("%10s %8d %10d", className(actual),
			ct.Counts[actual][nnet.ClassBenign], ct.Counts[actual][nnet.ClassMalignant])
	}
}

func className(class int) string {
	if class == nnet.ClassMalignant {
		return "malignant"
	}
	return "benign"
}
