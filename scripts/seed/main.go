package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/procura-app/procura/internal/app"
	"github.com/procura-app/procura/internal/procurement"
)

func main() {
	reset := flag.Bool("reset", false, "clear the stored state before seeding")
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	logger := app.NewLogger(cfg)

	resources, err := app.OpenResources(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("open resources: %v", err)
	}
	defer resources.Close()

	svc := procurement.NewService(resources.Backend,
		procurement.WithKey(cfg.StateKey),
		procurement.WithLogger(logger),
		procurement.WithAudit(resources.Audit),
	)
	defer svc.Close()
	if err := svc.Hydrate(ctx); err != nil {
		log.Fatalf("hydrate: %v", err)
	}
	if *reset {
		fmt.Println("→ Clearing state...")
		if err := svc.Reset(ctx); err != nil {
			log.Fatalf("reset: %v", err)
		}
	}

	fmt.Println("→ Seeding cash forecasts...")
	if err := seedForecasts(ctx, svc); err != nil {
		log.Fatalf("seed forecasts: %v", err)
	}
	fmt.Println("→ Seeding requisitions...")
	if err := seedRequisitions(ctx, svc); err != nil {
		log.Fatalf("seed requisitions: %v", err)
	}

	st := svc.Snapshot()
	logger.Info("seed complete",
		slog.Int("forecasts", len(st.Forecasts)),
		slog.Int("requisitions", len(st.Requisitions)),
		slog.Int("queue_items", len(st.QueueItems)))
}

func seedForecasts(ctx context.Context, svc *procurement.Service) error {
	month := time.Now().UTC()
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	confirmed := procurement.BuildForecast(procurement.ForecastInput{
		PeriodStart: start, PeriodEnd: end, Responsible: "Tesouraria", Amount: 900000, Scope: procurement.ScopeTreasury,
	})
	confirmed.Status = procurement.ForecastConfirmed
	projected := procurement.BuildForecast(procurement.ForecastInput{
		PeriodStart: start.AddDate(0, 1, 0), PeriodEnd: start.AddDate(0, 2, -1), Responsible: "Controladoria", Amount: 350000, Scope: procurement.ScopeGeneral,
	})
	for _, f := range []procurement.CashForecast{confirmed, projected} {
		if err := svc.AddForecast(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func seedRequisitions(ctx context.Context, svc *procurement.Service) error {
	requests := []procurement.NewRequisition{
		{
			Title:         "Estações de trabalho para o time de dados",
			Justification: "Renovação do parque de máquinas",
			CostCenter:    "ti",
			Items: []procurement.RequisitionLineItem{
				{Product: "MacBook Pro M3", Quantity: 3, UnitPrice: 12000},
				{Product: "Monitor Dell 27\"", Quantity: 5, UnitPrice: 2500},
				{Product: "Licença de Software", Quantity: 10, UnitPrice: 1500},
			},
		},
		{
			Title:         "Mobiliário do novo escritório",
			Justification: "Expansão da equipe de operações",
			CostCenter:    "ops",
			Items: []procurement.RequisitionLineItem{
				{Product: "Cadeira Ergonômica", Quantity: 2, UnitPrice: 8000},
			},
		},
		{
			Title:         "Campanha de lançamento",
			Justification: "Material gráfico do trimestre",
			CostCenter:    "mkt",
			Status:        procurement.StatusDraft,
			Items: []procurement.RequisitionLineItem{
				{Product: "Impressão de banners", Quantity: 40, UnitPrice: 300},
			},
		},
	}
	for _, req := range requests {
		if _, err := svc.AddRequisition(ctx, req); err != nil {
			return err
		}
	}
	return nil
}
