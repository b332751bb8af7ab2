package main

import (
	"context"
	"log"
	"os"
	"time"

	"paylink/internal/services"

	"github.com/robfig/cron/v3"
)

// SweepJob walks expired pending claims on a schedule, marking them EXPIRED
// and refunding the escrowed funds to their senders.
type SweepJob struct {
	Claims *services.ServiceClaims
}

func NewSweepJob(claims *services.ServiceClaims) *SweepJob {
	return &SweepJob{Claims: claims}
}

func (j *SweepJob) Start(cronRunner *cron.Cron) error {
	schedule := os.Getenv("CRONJOB_TIME_SWEEP")
	if schedule == "" {
		schedule = "*/10 * * * *"
	}

	_, err := cronRunner.AddFunc(schedule, j.runScheduledTask)
	log.Println("Sweep Cronjob start at:", time.Now().Format("2006-01-02 15:04:05"), "cron:", schedule, err)
	return err
}

func (j *SweepJob) runScheduledTask() {
	ctx := context.Background()
	log.Println("Start sweeping expired claims ...")
	if err := j.Claims.SweepExpired(ctx); err != nil {
		log.Println(err)
		return
	}
	log.Println("Expired claim sweep done")
}
