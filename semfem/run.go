package semfem

import (
	"context"
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/notargets/gocca"

	"github.com/notargets/SEMFEM/comm"
	"github.com/notargets/SEMFEM/config"
	"github.com/notargets/SEMFEM/mesh"
	"github.com/notargets/SEMFEM/partitions"
	"github.com/notargets/SEMFEM/runner"
	"github.com/notargets/SEMFEM/utils"
)

// Run generates the configured box mesh, splits it over cfg.Ranks ranks and
// runs Setup on each. The result is indexed by rank.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) ([]*Data, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	spec, err := cfg.BoxSpec()
	if err != nil {
		return nil, err
	}
	strategy, err := partitions.ParseStrategy(cfg.Mesh.Partitioning)
	if err != nil {
		return nil, err
	}
	box, err := mesh.NewBox(spec)
	if err != nil {
		return nil, err
	}
	meshes, _, err := box.Partition(cfg.Ranks, strategy)
	if err != nil {
		return nil, err
	}
	logger.Info("box mesh",
		"elements", box.K, "nodes", box.NumGlobalNodes(), "dofs", box.NumFreeNodes(),
		"ranks", cfg.Ranks, "partitioning", strategy.String())

	results := make([]*Data, cfg.Ranks)
	err = comm.NewWorld(cfg.Ranks).Run(ctx, func(_ context.Context, c *comm.Comm) error {
		opts := Options{
			Backend:         cfg.Backend,
			Tolerance:       cfg.Tolerance,
			AllowDegenerate: cfg.AllowDegenerate,
			Logger:          logger,
		}
		in := Input{Mesh: meshes[c.Rank()]}
		if cfg.Backend == config.BackendDevice {
			device, err := utils.CreateDevice(cfg.Device.Mode)
			if err != nil {
				return fmt.Errorf("rank %d: %w", c.Rank(), err)
			}
			defer device.Free()
			kr := runner.NewRunner(device, cfg.Device.ScratchBytes)
			defer kr.Free()
			opts.Runner = kr

			coords := uploadCoordinates(device, in.Mesh)
			defer func() {
				for _, mem := range coords {
					if mem != nil {
						mem.Free()
					}
				}
			}()
			in.DeviceX, in.DeviceY, in.DeviceZ = coords[0], coords[1], coords[2]
		}
		data, err := Setup(c, in, opts)
		if err != nil {
			return err
		}
		results[c.Rank()] = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func uploadCoordinates(device *gocca.OCCADevice, m *mesh.Mesh) (mems [3]*gocca.OCCAMemory) {
	for d, host := range [][]float64{m.X, m.Y, m.Z} {
		if len(host) == 0 {
			continue
		}
		mems[d] = device.Malloc(int64(len(host))*runner.WordBytes, unsafe.Pointer(&host[0]), nil)
	}
	return mems
}
