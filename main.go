package main

import (
	"TrendToVideo-server/config"
	"TrendToVideo-server/logger"
	"TrendToVideo-server/models"
	"TrendToVideo-server/routers"
	"TrendToVideo-server/routers/api"
	"TrendToVideo-server/service"
)

func main() {
	config.InitConfig()
	log := logger.L()
	log.Infof("server starting on port %s", config.AppConfig.Server.Port)

	models.InitDB()
	service.InitQueue()
	service.InitMinIO()

	store := models.NewGormJobStore(models.GormDB)

	planner, err := service.NewPublishPlanner()
	if err != nil {
		log.Fatalf("publish planner init failed: %v", err)
	}

	renderer := service.NewRenderWorkerClient()
	artifacts := service.NewMinioArtifactStore()
	orchestrator := service.NewOrchestrator(
		store,
		service.NewOpenAIScriptGenerator(store),
		renderer,
		renderer,
		artifacts,
		service.NewPlatformPublisher(),
		planner,
	)

	scheduler := service.NewScheduler(
		store,
		orchestrator,
		service.NewTrendingFetcher(store),
		artifacts,
		service.NewHealthChecker(store, artifacts),
	)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("scheduler start failed: %v", err)
	}

	service.StartQueueWorker(orchestrator, 2)

	api.Setup(store, orchestrator, scheduler)
	r := routers.InitRouter()
	if err := r.Run(config.AppConfig.Server.Port); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
