package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net" //cloudwatch

	"github.com/aws/aws-sdk-go-v2/aws"                              //cloudwatch
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types" //cloudwatch
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsConversion   int64
	errorsPreview      int64
	warnsConversion    int64
	warnsPreview       int64
	conversionsSettled int64
	previewsSettled    int64
	requestsCommitted  int64
	queryWrites        int64
	proxyRequests      int64
	channels           sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	if strings.Contains(component, "preview") {
		atomic.AddInt64(&warnsPreview, 1)
	} else if strings.Contains(component, "conversion") {
		atomic.AddInt64(&warnsConversion, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "preview") {
		atomic.AddInt64(&errorsPreview, 1)
	} else if strings.Contains(component, "conversion") {
		atomic.AddInt64(&errorsConversion, 1)
	}
}

func IncrementCommitted() {
	atomic.AddInt64(&requestsCommitted, 1)
}

func IncrementConversionSettled() {
	atomic.AddInt64(&conversionsSettled, 1)
}

func IncrementPreviewSettled() {
	atomic.AddInt64(&previewsSettled, 1)
}

func IncrementQueryWrite() {
	atomic.AddInt64(&queryWrites, 1)
}

func IncrementProxyRequest(size int) {
	atomic.AddInt64(&proxyRequests, 1)
	recordChannel("proxy_http", size)
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and pipeline statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_conversion":   atomic.LoadInt64(&errorsConversion),
		"errors_preview":      atomic.LoadInt64(&errorsPreview),
		"warns_conversion":    atomic.LoadInt64(&warnsConversion),
		"warns_preview":       atomic.LoadInt64(&warnsPreview),
		"conversions_settled": atomic.LoadInt64(&conversionsSettled),
		"previews_settled":    atomic.LoadInt64(&previewsSettled),
		"requests_committed":  atomic.LoadInt64(&requestsCommitted),
		"query_writes":        atomic.LoadInt64(&queryWrites),
		"proxy_requests":      atomic.LoadInt64(&proxyRequests),
		"goroutines":          runtime.NumGoroutine(),
		"cpu_percent":         cpuPct,
		"memory_mb":           int64(memStats.Used) / 1024 / 1024,
		"disk_mb":             int64(diskStats.Used) / 1024 / 1024,
		"channels":            channelData,
		"net_bytes_sent":      int64(bytesSent),
		"net_bytes_recv":      int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("CF-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("CF-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("CF-DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("CF-ErrorsConversion"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_conversion"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("CF-ErrorsPreview"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_preview"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("CF-WarnsConversion"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_conversion"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("CF-WarnsPreview"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_preview"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("CF-ConversionsSettled"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["conversions_settled"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("CF-PreviewsSettled"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["previews_settled"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("CF-RequestsCommitted"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["requests_committed"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("CF-QueryWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["query_writes"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("CF-ProxyRequests"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["proxy_requests"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("CF-NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("CF-NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("CF-ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("CF-ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
