package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jimyag/nqg/internal/nqg/entity"
	"github.com/jimyag/nqg/internal/nqg/service"
	"github.com/jimyag/nqg/pkg/ginx"
)

// VMServiceInterface is the slice of the VM service the handlers use.
type VMServiceInterface interface {
	CreateVM(ctx context.Context, req *entity.CreateVMRequest) (*entity.VMRecord, error)
	ListVMs(ctx context.Context) ([]*entity.VMRecord, error)
	DescribeVM(ctx context.Context, name string) (*entity.VMRecord, error)
	ModifyVM(ctx context.Context, req *entity.ModifyVMRequest) (*entity.VMRecord, error)
	DeleteVM(ctx context.Context, name string) error
	CloneVM(ctx context.Context, req *entity.CloneVMRequest) (*entity.VMRecord, error)
	StartVM(ctx context.Context, name string) (int, error)
	StopVM(ctx context.Context, name string) error
	CompileCommand(ctx context.Context, name string) (*entity.CompileVMResponse, error)
}

type VM struct {
	vmService VMServiceInterface
}

func NewVM(vmService *service.VMService) *VM {
	return &VM{vmService: vmService}
}

func (v *VM) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/create-vm", ginx.Adapt5(v.CreateVM))
	router.POST("/list-vms", ginx.Adapt3(v.ListVMs))
	router.POST("/describe-vm", ginx.Adapt5(v.DescribeVM))
	router.POST("/modify-vm", ginx.Adapt5(v.ModifyVM))
	router.POST("/delete-vm", ginx.Adapt4(v.DeleteVM))
	router.POST("/clone-vm", ginx.Adapt5(v.CloneVM))
	router.POST("/start-vm", ginx.Adapt5(v.StartVM))
	router.POST("/stop-vm", ginx.Adapt4(v.StopVM))
	router.POST("/compile-vm", ginx.Adapt5(v.CompileVM))
}

func (v *VM) CreateVM(ctx *gin.Context, req *entity.CreateVMRequest) (*entity.CreateVMResponse, error) {
	logger := zerolog.Ctx(ctx)
	logger.Info().Str("name", req.Name).Msg("API: CreateVM called")

	rec, err := v.vmService.CreateVM(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("create machine failed")
		return nil, err
	}
	return &entity.CreateVMResponse{VM: rec}, nil
}

func (v *VM) ListVMs(ctx *gin.Context) (*entity.ListVMsResponse, error) {
	vms, err := v.vmService.ListVMs(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("list machines failed")
		return nil, err
	}
	return &entity.ListVMsResponse{VMs: vms}, nil
}

func (v *VM) DescribeVM(ctx *gin.Context, req *entity.DescribeVMRequest) (*entity.DescribeVMResponse, error) {
	rec, err := v.vmService.DescribeVM(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	return &entity.DescribeVMResponse{VM: rec}, nil
}

func (v *VM) ModifyVM(ctx *gin.Context, req *entity.ModifyVMRequest) (*entity.ModifyVMResponse, error) {
	logger := zerolog.Ctx(ctx)
	logger.Info().Str("name", req.Name).Msg("API: ModifyVM called")

	rec, err := v.vmService.ModifyVM(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("modify machine failed")
		return nil, err
	}
	return &entity.ModifyVMResponse{VM: rec}, nil
}

func (v *VM) DeleteVM(ctx *gin.Context, req *entity.DeleteVMRequest) error {
	logger := zerolog.Ctx(ctx)
	logger.Info().Str("name", req.Name).Msg("API: DeleteVM called")

	if err := v.vmService.DeleteVM(ctx, req.Name); err != nil {
		logger.Error().Err(err).Msg("delete machine failed")
		return err
	}
	return nil
}

func (v *VM) CloneVM(ctx *gin.Context, req *entity.CloneVMRequest) (*entity.CloneVMResponse, error) {
	logger := zerolog.Ctx(ctx)
	logger.Info().
		Str("name", req.Name).
		Str("new_name", req.NewName).
		Msg("API: CloneVM called")

	rec, err := v.vmService.CloneVM(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("clone machine failed")
		return nil, err
	}
	return &entity.CloneVMResponse{VM: rec}, nil
}

func (v *VM) StartVM(ctx *gin.Context, req *entity.StartVMRequest) (*entity.StartVMResponse, error) {
	logger := zerolog.Ctx(ctx)
	logger.Info().Str("name", req.Name).Msg("API: StartVM called")

	pid, err := v.vmService.StartVM(ctx, req.Name)
	if err != nil {
		logger.Error().Err(err).Msg("start machine failed")
		return nil, err
	}
	return &entity.StartVMResponse{Name: req.Name, PID: pid}, nil
}

func (v *VM) StopVM(ctx *gin.Context, req *entity.StopVMRequest) error {
	logger := zerolog.Ctx(ctx)
	logger.Info().Str("name", req.Name).Msg("API: StopVM called")

	if err := v.vmService.StopVM(ctx, req.Name); err != nil {
		logger.Error().Err(err).Msg("stop machine failed")
		return err
	}
	return nil
}

func (v *VM) CompileVM(ctx *gin.Context, req *entity.CompileVMRequest) (*entity.CompileVMResponse, error) {
	return v.vmService.CompileCommand(ctx, req.Name)
}
