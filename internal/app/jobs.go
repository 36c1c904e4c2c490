package app

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, _ := time.LoadLocation(a.appConfig.System.Location)
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))
	a.sched.Start()
}

// ScheduleEvery registers a recurring background job.
func (a *Application) ScheduleEvery(interval time.Duration, name string, job func()) {
	spec := "@every " + interval.String()
	_, err := a.sched.AddFunc(spec, func() {
		defer func() {
			if err := recover(); err != nil {
				zap.S().Errorf("job %s panic: %v", name, err)
			}
		}()
		job()
	})
	if err != nil {
		zap.S().Errorf("init job %s error %s", name, err.Error())
	}
}
