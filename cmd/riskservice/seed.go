package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/opensource-finance/riskservice/internal/domain"
	"github.com/opensource-finance/riskservice/internal/gateway"
	"github.com/opensource-finance/riskservice/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	seedFile  string
	seedFake  int
	seedValue uint64

	seedCmd = &cobra.Command{
		Use:   "seed",
		Short: "Load risk records into the store",
		Long: `seed upserts risks from a YAML file (--file) or generates random ones
(--fake N) that reference the sandbox business partners.`,
		RunE: runSeed,
	}
)

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "YAML file with a top-level risks list")
	seedCmd.Flags().IntVar(&seedFake, "fake", 0, "number of random risks to generate")
	seedCmd.Flags().Uint64Var(&seedValue, "seed", 0, "random seed for --fake (0 picks one)")
	seedCmd.MarkFlagsMutuallyExclusive("file", "fake")
	seedCmd.MarkFlagsOneRequired("file", "fake")
}

// seedRisk is the YAML form of a risk.
type seedRisk struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Owner    string `yaml:"owner"`
	Descr    string `yaml:"descr"`
	PrioCode string `yaml:"prio_code"`
	Impact   string `yaml:"impact"`
	Partner  string `yaml:"bp"`
}

type seedDocument struct {
	Risks []seedRisk `yaml:"risks"`
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var risks []*domain.Risk
	if seedFile != "" {
		risks, err = readSeedFile(seedFile)
		if err != nil {
			return err
		}
	} else {
		risks = fakeRisks(gofakeit.New(seedValue), seedFake, gateway.DefaultPartners())
	}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	ctx := context.Background()
	for _, r := range risks {
		if err := repo.SaveRisk(ctx, r); err != nil {
			return fmt.Errorf("failed to save risk %s: %w", r.ID, err)
		}
	}

	slog.Info("risks seeded", "count", len(risks), "driver", cfg.Repository.Driver)
	return nil
}

func readSeedFile(path string) ([]*domain.Risk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var doc seedDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	risks := make([]*domain.Risk, 0, len(doc.Risks))
	for i, sr := range doc.Risks {
		r, err := sr.toRisk()
		if err != nil {
			return nil, fmt.Errorf("seed file %s: risk %d: %w", path, i, err)
		}
		risks = append(risks, r)
	}
	return risks, nil
}

func (sr seedRisk) toRisk() (*domain.Risk, error) {
	r := &domain.Risk{
		ID:                sr.ID,
		Title:             sr.Title,
		Owner:             sr.Owner,
		Descr:             sr.Descr,
		PrioCode:          sr.PrioCode,
		BusinessPartnerID: sr.Partner,
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if sr.Impact != "" {
		d, err := decimal.NewFromString(sr.Impact)
		if err != nil {
			return nil, fmt.Errorf("bad impact %q: %w", sr.Impact, err)
		}
		r.Impact = &d
	}
	return r, nil
}

// fakeRisks generates n risks. About one in five has no partner.
func fakeRisks(f *gofakeit.Faker, n int, partners []*domain.BusinessPartner) []*domain.Risk {
	ids := make([]string, 0, len(partners))
	for _, bp := range partners {
		ids = append(ids, bp.BusinessPartner)
	}
	prios := []string{domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow}

	risks := make([]*domain.Risk, 0, n)
	for range n {
		impact := decimal.NewFromInt(int64(f.Number(1000, 250000)))
		r := &domain.Risk{
			ID:       uuid.NewString(),
			Title:    f.Sentence(4),
			Owner:    f.Name(),
			Descr:    f.Paragraph(1, 2, 12, " "),
			PrioCode: f.RandomString(prios),
			Impact:   &impact,
		}
		if len(ids) > 0 && f.Number(1, 5) > 1 {
			r.BusinessPartnerID = f.RandomString(ids)
		}
		risks = append(risks, r)
	}
	return risks
}
