package http

import (
	"net/http"

	"EduTask/internal/config"
	"EduTask/internal/middleware/accesslog"
	jwtMiddleware "EduTask/internal/middleware/jwt"
	"EduTask/internal/modules/notification/domain/repository"
	notifyHandler "EduTask/internal/modules/notification/interface/http"
	notifyWs "EduTask/internal/modules/notification/interface/websocket"
	"EduTask/pkg/ssl"
	"EduTask/pkg/util/myjwt"
	"EduTask/pkg/ws"
	"EduTask/pkg/zlog"

	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Deps 路由依赖，由 cmd 组装
type Deps struct {
	Conf     *config.Config
	Registry *ws.Registry
	Sender   notifyHandler.Sender
	Jwt      *myjwt.Manager
	// Audit 可为空
	Audit repository.DeliveryRepository
}

func NewEngine(d Deps) *gin.Engine {
	ge := gin.New()
	ge.Use(accesslog.New(zlog.L()), gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if origins := d.Conf.NotifyConfig.AllowedOrigins; len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowOrigins = []string{"*"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	ge.Use(cors.New(corsConfig))
	if d.Conf.MainConfig.ForceTLS {
		ge.Use(ssl.TlsHandler(d.Conf.MainConfig.Host, d.Conf.MainConfig.Port))
	}

	wsH := notifyWs.NewWsHandler(d.Registry, d.Jwt, d.Conf.NotifyConfig)
	notifyH := notifyHandler.NewNotificationHandler(d.Sender, d.Registry, d.Audit)

	ge.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	ge.GET(d.Conf.NotifyConfig.Path, wsH.Connect)

	authed := ge.Group("/notification")
	authed.Use(jwtMiddleware.Auth(d.Jwt))
	authed.POST("/send", notifyH.Send)
	authed.POST("/broadcast", notifyH.Broadcast)
	authed.GET("/online", notifyH.Online)
	authed.GET("/deliveries", notifyH.ListDeliveries)

	return ge
}
