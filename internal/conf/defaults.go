// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers default values on v.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("main.name", "LensNet-Go")

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/lensnet.log")
	v.SetDefault("logging.file_output.level", "info")

	v.SetDefault("camera.driver", "replay")
	v.SetDefault("camera.source", "frames/")
	v.SetDefault("camera.position", "back")
	v.SetDefault("camera.lens", "")
	v.SetDefault("camera.framerate", 30.0)

	v.SetDefault("model.type", "mobilenet_v2")
	v.SetDefault("model.path", "models/")
	v.SetDefault("model.threads", 0)
	v.SetDefault("model.usexnnpack", true)
	v.SetDefault("model.topk", 5)
	v.SetDefault("model.minconfidence", 0.25)

	v.SetDefault("throttle.mininterval", 500*time.Millisecond)

	v.SetDefault("live.expirywindow", 3*time.Second)
	v.SetDefault("live.sweepinterval", time.Second)
	v.SetDefault("live.maxresults", 6)
	v.SetDefault("live.refreshpolicy", "on_raise")

	v.SetDefault("highlight.rules", map[string]float64{})
	v.SetDefault("highlight.assistedcapture", false)

	v.SetDefault("bestshot.duration", 10*time.Second)
	v.SetDefault("bestshot.targetlabel", "")
	v.SetDefault("bestshot.threshold", 0.8)
	v.SetDefault("bestshot.captureinterval", time.Second)
	v.SetDefault("bestshot.keeptop", 3)
	v.SetDefault("bestshot.thumbnailsize", 160)
	v.SetDefault("bestshot.finalizetimeout", 5*time.Second)
	v.SetDefault("bestshot.save", true)

	v.SetDefault("privacy.faceblur", false)
	v.SetDefault("privacy.style", "pixelate")
	v.SetDefault("privacy.blocksize", 16)

	v.SetDefault("location.enabled", false)
	v.SetDefault("location.latitude", 0.0)
	v.SetDefault("location.longitude", 0.0)

	v.SetDefault("output.path", "captures/")
	v.SetDefault("output.sqlite.enabled", true)
	v.SetDefault("output.sqlite.path", "lensnet.db")
	v.SetDefault("output.mysql.enabled", false)
	v.SetDefault("output.mysql.username", "lensnet")
	v.SetDefault("output.mysql.password", "secret")
	v.SetDefault("output.mysql.host", "localhost")
	v.SetDefault("output.mysql.port", "3306")
	v.SetDefault("output.mysql.database", "lensnet")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "lensnet")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.retain", false)
	v.SetDefault("mqtt.publishinterval", time.Second)
	v.SetDefault("mqtt.homeassistant.discovery", false)
	v.SetDefault("mqtt.homeassistant.prefix", "homeassistant")

	v.SetDefault("notification.enabled", false)
	v.SetDefault("notification.urls", []string{})
	v.SetDefault("notification.timeout", 10*time.Second)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.listen", "0.0.0.0:8090")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen", "127.0.0.1:8080")
	v.SetDefault("api.allowedorigins", []string{"*"})

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")

	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.interval", 5*time.Second)
	v.SetDefault("monitoring.cpuhigh", 85.0)
	v.SetDefault("monitoring.cpulow", 60.0)
	v.SetDefault("monitoring.maxintervalfactor", 3.0)
	v.SetDefault("monitoring.diskwarning", 90.0)
}
