package diagnostic

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"aks-egress-check/internal/config"
	"aks-egress-check/internal/egress"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Names and paths shared by the probe pod and its payload.
const (
	ProbeContainerName = "probe"
	PayloadVolumeName  = "payload"
	PayloadMountPath   = "/etc/aks-egress-check"
	PayloadFileName    = "probe.yaml"

	AppLabel   = "app.kubernetes.io/name"
	AppName    = "aks-egress-check"
	RunIDLabel = "aks-egress-check/run-id"
)

// PayloadPath is where the probe reads its payload inside the pod.
var PayloadPath = path.Join(PayloadMountPath, PayloadFileName)

// Tester provisions the probe environment in a cluster and collects its
// report.
type Tester struct {
	clientset        kubernetes.Interface
	namespace        string
	logger           *zap.Logger
	pollInterval     time.Duration
	namespaceTimeout time.Duration
	createdNamespace bool
	// openLogs opens the probe container's log stream.
	openLogs func(ctx context.Context, podName string) (io.ReadCloser, error)
}

// NewTester creates a tester from a kubeconfig path, the in-cluster
// config, or the default kubeconfig, in that order.
func NewTester(kubeconfig, namespace string, logger *zap.Logger) (*Tester, error) {
	var cfg *rest.Config
	var err error

	if kubeconfig != "" {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		cfg, err = rest.InClusterConfig()
		if err != nil {
			// Try to use default kubeconfig
			cfg, err = clientcmd.BuildConfigFromFlags("", clientcmd.RecommendedHomeFile)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	return NewTesterForClient(clientset, namespace, logger), nil
}

// NewTesterForClient wraps an existing clientset.
func NewTesterForClient(clientset kubernetes.Interface, namespace string, logger *zap.Logger) *Tester {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tester{
		clientset:        clientset,
		namespace:        namespace,
		logger:           logger,
		pollInterval:     2 * time.Second,
		namespaceTimeout: 2 * time.Minute,
	}
	t.openLogs = t.followProbeLogs
	return t
}

// Namespace returns the namespace the tester works in.
func (t *Tester) Namespace() string {
	return t.namespace
}

// EnsureNamespace creates the namespace if it doesn't exist. A namespace
// still terminating from an earlier run is waited out and recreated.
func (t *Tester) EnsureNamespace(ctx context.Context) error {
	ns, err := t.clientset.CoreV1().Namespaces().Get(ctx, t.namespace, metav1.GetOptions{})
	switch {
	case err == nil && ns.Status.Phase != corev1.NamespaceTerminating:
		return nil
	case err == nil:
		t.logger.Info("waiting for terminating namespace to go away", zap.String("namespace", t.namespace))
		if err := t.waitForNamespaceGone(ctx); err != nil {
			return err
		}
	case !apierrors.IsNotFound(err):
		return fmt.Errorf("failed to get namespace %s: %w", t.namespace, err)
	}

	namespace := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:   t.namespace,
			Labels: map[string]string{AppLabel: AppName},
		},
	}
	_, err = t.clientset.CoreV1().Namespaces().Create(ctx, namespace, metav1.CreateOptions{})
	if err != nil {
		return fmt.Errorf("failed to create namespace %s: %w", t.namespace, err)
	}
	t.createdNamespace = true
	t.logger.Info("created namespace", zap.String("namespace", t.namespace))
	return nil
}

func (t *Tester) waitForNamespaceGone(ctx context.Context) error {
	err := wait.PollUntilContextTimeout(ctx, t.pollInterval, t.namespaceTimeout, true, func(ctx context.Context) (bool, error) {
		_, err := t.clientset.CoreV1().Namespaces().Get(ctx, t.namespace, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("namespace %s is still terminating: %w", t.namespace, err)
	}
	return nil
}

// CleanupNamespace removes the namespace when this tester created it.
// A namespace that already existed is left in place.
func (t *Tester) CleanupNamespace(ctx context.Context) error {
	if !t.createdNamespace {
		return nil
	}
	err := t.clientset.CoreV1().Namespaces().Delete(ctx, t.namespace, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete namespace %s: %w", t.namespace, err)
	}
	t.createdNamespace = false
	return nil
}

// Resources names the objects created for one run.
type Resources struct {
	Name  string
	RunID string
}

// NewResources derives resource names from a run ID.
func NewResources(runID string) Resources {
	suffix := strings.ToLower(strings.ReplaceAll(runID, "-", ""))
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return Resources{Name: AppName + "-" + suffix, RunID: runID}
}

// Labels are applied to every object of the run.
func (r Resources) Labels() map[string]string {
	return map[string]string{
		AppLabel:   AppName,
		RunIDLabel: r.RunID,
	}
}

// CreatePayload stores the probe payload in a ConfigMap named after the run.
func (t *Tester) CreatePayload(ctx context.Context, res Resources, payload config.ProbePayload) (*corev1.ConfigMap, error) {
	data, err := payload.Marshal()
	if err != nil {
		return nil, err
	}

	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      res.Name,
			Namespace: t.namespace,
			Labels:    res.Labels(),
		},
		Data: map[string]string{
			PayloadFileName: string(data),
		},
	}
	created, err := t.clientset.CoreV1().ConfigMaps(t.namespace).Create(ctx, cm, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create payload configmap %s: %w", res.Name, err)
	}
	return created, nil
}

// CreateProbePod creates the pod that runs the probe command once against
// the mounted payload.
func (t *Tester) CreateProbePod(ctx context.Context, res Resources, image string) (*corev1.Pod, error) {
	automount := false
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      res.Name,
			Namespace: t.namespace,
			Labels:    res.Labels(),
		},
		Spec: corev1.PodSpec{
			RestartPolicy:                corev1.RestartPolicyNever,
			AutomountServiceAccountToken: &automount,
			NodeSelector: map[string]string{
				"kubernetes.io/os": "linux",
			},
			Tolerations: []corev1.Toleration{
				{Key: "CriticalAddonsOnly", Operator: corev1.TolerationOpExists},
			},
			Containers: []corev1.Container{
				{
					Name:    ProbeContainerName,
					Image:   image,
					Command: []string{AppName, "probe", "--payload", PayloadPath},
					VolumeMounts: []corev1.VolumeMount{
						{Name: PayloadVolumeName, MountPath: PayloadMountPath, ReadOnly: true},
					},
					Resources: corev1.ResourceRequirements{
						Requests: corev1.ResourceList{
							corev1.ResourceCPU:    resource.MustParse("50m"),
							corev1.ResourceMemory: resource.MustParse("64Mi"),
						},
						Limits: corev1.ResourceList{
							corev1.ResourceMemory: resource.MustParse("128Mi"),
						},
					},
				},
			},
			Volumes: []corev1.Volume{
				{
					Name: PayloadVolumeName,
					VolumeSource: corev1.VolumeSource{
						ConfigMap: &corev1.ConfigMapVolumeSource{
							LocalObjectReference: corev1.LocalObjectReference{Name: res.Name},
						},
					},
				},
			},
		},
	}

	created, err := t.clientset.CoreV1().Pods(t.namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create probe pod %s: %w", res.Name, err)
	}
	return created, nil
}

// waitForPodStarted waits until the pod leaves Pending. Running out of
// time yields an *EnvironmentError carrying the last observed reason.
func (t *Tester) waitForPodStarted(ctx context.Context, podName string, timeout time.Duration) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	envErr := &EnvironmentError{Pod: podName, Phase: string(corev1.PodPending), Timeout: timeout}
	for {
		select {
		case <-timeoutCtx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			return envErr
		case <-ticker.C:
			pod, err := t.clientset.CoreV1().Pods(t.namespace).Get(timeoutCtx, podName, metav1.GetOptions{})
			if err != nil {
				continue
			}

			switch pod.Status.Phase {
			case corev1.PodRunning, corev1.PodSucceeded, corev1.PodFailed:
				return nil
			}
			if pod.Status.Phase != "" {
				envErr.Phase = string(pod.Status.Phase)
			}
			envErr.Reason, envErr.Message = pendingReason(pod)
		}
	}
}

// pendingReason explains why a pod has not started yet.
func pendingReason(pod *corev1.Pod) (string, string) {
	for _, cs := range pod.Status.ContainerStatuses {
		if w := cs.State.Waiting; w != nil && w.Reason != "" {
			return w.Reason, w.Message
		}
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodScheduled && cond.Status == corev1.ConditionFalse {
			return cond.Reason, cond.Message
		}
	}
	return "", ""
}

// StreamLogs follows the probe container's output until it exits. Lines
// that are not the report go to progress.
func (t *Tester) StreamLogs(ctx context.Context, podName string, progress func(string)) (egress.Report, error) {
	stream, err := t.openLogs(ctx, podName)
	if err != nil {
		return nil, fmt.Errorf("failed to stream logs of pod %s: %w", podName, err)
	}
	defer stream.Close()

	return ExtractReport(stream, progress)
}

func (t *Tester) followProbeLogs(ctx context.Context, podName string) (io.ReadCloser, error) {
	req := t.clientset.CoreV1().Pods(t.namespace).GetLogs(podName, &corev1.PodLogOptions{
		Container: ProbeContainerName,
		Follow:    true,
	})
	return req.Stream(ctx)
}

// ExtractReport scans probe output and returns the last line that decodes
// as a report. Every other non-empty line is passed to progress.
func ExtractReport(r io.Reader, progress func(string)) (egress.Report, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var report egress.Report
	found := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") {
			if decoded, err := egress.DecodeReport([]byte(line)); err == nil {
				report = decoded
				found = true
				continue
			}
		}
		if progress != nil {
			progress(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read probe output: %w", err)
	}
	if !found {
		return nil, ErrReportNotFound
	}
	return report, nil
}

// waitForProbeTerminated returns the terminated state of the probe
// container once the kubelet has recorded it.
func (t *Tester) waitForProbeTerminated(ctx context.Context, podName string, timeout time.Duration) (*corev1.ContainerStateTerminated, error) {
	var terminated *corev1.ContainerStateTerminated
	err := wait.PollUntilContextTimeout(ctx, t.pollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		pod, err := t.clientset.CoreV1().Pods(t.namespace).Get(ctx, podName, metav1.GetOptions{})
		if err != nil {
			if apierrors.IsNotFound(err) {
				return false, err
			}
			return false, nil
		}
		for _, cs := range pod.Status.ContainerStatuses {
			if cs.Name == ProbeContainerName && cs.State.Terminated != nil {
				terminated = cs.State.Terminated
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("probe pod %s did not terminate: %w", podName, err)
	}
	return terminated, nil
}

// cleanupResources removes the run's pod and payload ConfigMap.
func (t *Tester) cleanupResources(ctx context.Context, res Resources) {
	grace := int64(0)
	if err := t.clientset.CoreV1().Pods(t.namespace).Delete(ctx, res.Name, metav1.DeleteOptions{GracePeriodSeconds: &grace}); err != nil && !apierrors.IsNotFound(err) {
		t.logger.Warn("failed to delete probe pod", zap.String("pod", res.Name), zap.Error(err))
	}
	if err := t.clientset.CoreV1().ConfigMaps(t.namespace).Delete(ctx, res.Name, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		t.logger.Warn("failed to delete payload configmap", zap.String("configmap", res.Name), zap.Error(err))
	}
}
