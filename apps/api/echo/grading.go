package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/tathmini/core/grading"
	"github.com/trezcool/tathmini/core/submission"
	"github.com/trezcool/tathmini/core/user"
)

type gradingApi struct {
	service *grading.Service
}

func registerGradingAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *grading.Service) {
	api := gradingApi{service: svc}

	sg := g.Group("/submissions/:id", jwt)
	sg.POST("/grade", api.submissionGrade)
	sg.POST("/claim", api.moveHandler(api.service.ClaimSubmission))
	sg.POST("/release", api.moveHandler(api.service.ReleaseSubmission))
	sg.POST("/return", api.moveHandler(api.service.ReturnSubmission))

	g.POST("/exercises/:id/submissions", api.standaloneCreate, jwt)
	g.POST("/practice-submissions/:id/grade", api.standaloneGrade, jwt)
}

type moveFunc func(ctx context.Context, id string, grader user.Identity) (submission.Submission, error)

// Handlers

func (api *gradingApi) bindGrade(ctx echo.Context) (grading.GradeInput, error) {
	subID, id, err := pathIdentity(ctx)
	if err != nil {
		return grading.GradeInput{}, err
	}
	data := new(grading.GradeInput)
	if err := ctx.Bind(data); err != nil {
		return grading.GradeInput{}, err
	}
	data.SubmissionID = subID
	data.Grader = id
	return *data, nil
}

func (api *gradingApi) submissionGrade(ctx echo.Context) error {
	in, err := api.bindGrade(ctx)
	if err != nil {
		return err
	}
	sub, err := api.service.GradeSubmission(ctx.Request().Context(), in)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *gradingApi) moveHandler(move moveFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		subID, id, err := pathIdentity(ctx)
		if err != nil {
			return err
		}
		sub, err := move(ctx.Request().Context(), subID, id)
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, sub)
	}
}

func (api *gradingApi) standaloneCreate(ctx echo.Context) error {
	exerciseID, id, err := pathIdentity(ctx)
	if err != nil {
		return err
	}
	data := new(grading.StandaloneInput)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	data.UserID = id.UserID
	data.ExerciseID = exerciseID

	sub, err := api.service.SubmitStandalone(ctx.Request().Context(), *data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *gradingApi) standaloneGrade(ctx echo.Context) error {
	in, err := api.bindGrade(ctx)
	if err != nil {
		return err
	}
	sub, err := api.service.GradeStandalone(ctx.Request().Context(), in)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sub)
}
